package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Dosada05/tournament-engine/repositories"
)

func TestTranslateRepoError(t *testing.T) {
	other := errors.New("disk on fire")
	tests := []struct {
		in   error
		want error
	}{
		{in: repositories.ErrRoomNotFound, want: ErrNotFound},
		{in: fmt.Errorf("get: %w", repositories.ErrMatchStateNotFound), want: ErrNotFound},
		{in: repositories.ErrRoomConflict, want: ErrDuplicateResource},
		{in: repositories.ErrMatchStateConflict, want: ErrDuplicateResource},
		{in: repositories.ErrVersionConflict, want: ErrStaleState},
		{in: repositories.ErrRoomStatusChanged, want: ErrStaleState},
		{in: other, want: other},
	}
	for _, tt := range tests {
		got := translateRepoError(tt.in)
		if !errors.Is(got, tt.want) {
			t.Errorf("translateRepoError(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if !errors.Is(got, tt.in) {
			t.Errorf("translateRepoError(%v) lost the cause", tt.in)
		}
	}
	if translateRepoError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
