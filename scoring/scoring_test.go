package scoring

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Dosada05/tournament-engine/models"
)

func TestPlacementFor(t *testing.T) {
	tests := []struct {
		active int
		want   int
	}{
		{active: 4, want: 4},
		{active: 3, want: 3},
		{active: 2, want: 2},
		{active: 1, want: 1},
		{active: 0, want: 1},
	}
	for _, tt := range tests {
		if got := PlacementFor(tt.active); got != tt.want {
			t.Errorf("PlacementFor(%d) = %d, want %d", tt.active, got, tt.want)
		}
	}
}

func TestPlacementForIsMonotonic(t *testing.T) {
	prev := PlacementFor(1)
	for n := 2; n <= 100; n++ {
		got := PlacementFor(n)
		if got < prev {
			t.Fatalf("placement decreased from %d to %d at %d active", prev, got, n)
		}
		prev = got
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     models.ScoringConfig
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "empty table", cfg: models.ScoringConfig{KillMultiplier: 1}},
		{name: "negative multiplier", cfg: models.ScoringConfig{KillMultiplier: -1}, wantErr: true},
		{name: "nan multiplier", cfg: models.ScoringConfig{KillMultiplier: math.NaN()}, wantErr: true},
		{name: "zero placement", cfg: models.ScoringConfig{PlacementPoints: map[int]float64{0: 5}}, wantErr: true},
		{name: "negative points", cfg: models.ScoringConfig{PlacementPoints: map[int]float64{1: -5}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scoring.yaml")
	body := "kill_multiplier: 1.5\nplacement_points:\n  1: 15\n  2: 12\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.KillMultiplier != 1.5 {
		t.Fatalf("expected multiplier 1.5, got %v", cfg.KillMultiplier)
	}
	if cfg.PlacementPoints[1] != 15 || cfg.PlacementPoints[2] != 12 || len(cfg.PlacementPoints) != 2 {
		t.Fatalf("unexpected table: %v", cfg.PlacementPoints)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PlacementPoints[1] != DefaultConfig().PlacementPoints[1] {
		t.Fatalf("expected default table, got %v", cfg.PlacementPoints)
	}

	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("kill_multiplier: 2\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.KillMultiplier != 2 || len(cfg.PlacementPoints) != len(DefaultConfig().PlacementPoints) {
		t.Fatalf("expected default table with custom multiplier, got %+v", cfg)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("kill_multiplier: -3\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSortStandings(t *testing.T) {
	boards := []*models.Leaderboard{
		{ParticipantID: "d", TotalPoints: 10, TotalKills: 5, Wins: 0},
		{ParticipantID: "a", TotalPoints: 20, TotalKills: 1},
		{ParticipantID: "c", TotalPoints: 10, TotalKills: 5, Wins: 1},
		{ParticipantID: "b", TotalPoints: 10, TotalKills: 5, Wins: 0},
		{ParticipantID: "e", TotalPoints: 10, TotalKills: 7},
	}
	SortStandings(boards)

	want := []string{"a", "e", "c", "b", "d"}
	for i, id := range want {
		if boards[i].ParticipantID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, boards[i].ParticipantID)
		}
	}
}

func TestIsTop(t *testing.T) {
	if IsTop(0, 3) || !IsTop(3, 3) || IsTop(4, 3) {
		t.Fatalf("unexpected IsTop results")
	}
	if !IsWin(1) || IsWin(2) {
		t.Fatalf("unexpected IsWin results")
	}
}
