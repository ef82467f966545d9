package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-engine/repositories"
)

// Общие ошибки, используемые в сервисах и маппинге HTTP.
var (
	ErrNotFound          = errors.New("requested resource not found")
	ErrInvalidTransition = errors.New("transition not allowed from the current match state")
	ErrTenantInactive    = errors.New("tenant is not active")
	ErrDuplicateResource = errors.New("resource already exists")
	ErrConnectionFailure = errors.New("tenant store is unavailable")
	ErrUnauthorized      = errors.New("caller is not allowed to perform this action")
	ErrValidationFailed  = errors.New("validation failed")
	ErrStaleState        = errors.New("match state was modified concurrently, refetch and retry")
)

// translateRepoError maps storage sentinels onto the service taxonomy.
// Unknown errors are returned unchanged.
func translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrRoomNotFound),
		errors.Is(err, repositories.ErrMatchStateNotFound),
		errors.Is(err, repositories.ErrLeaderboardNotFound),
		errors.Is(err, repositories.ErrTenantNotFound):
		return wrap(ErrNotFound, err)
	case errors.Is(err, repositories.ErrRoomConflict),
		errors.Is(err, repositories.ErrMatchStateConflict),
		errors.Is(err, repositories.ErrTenantConflict):
		return wrap(ErrDuplicateResource, err)
	case errors.Is(err, repositories.ErrVersionConflict),
		errors.Is(err, repositories.ErrRoomStatusChanged),
		errors.Is(err, repositories.ErrMatchLockTimeout):
		return wrap(ErrStaleState, err)
	default:
		return err
	}
}

func wrap(kind, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}
