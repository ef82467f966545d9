package repositories

import (
	"context"
	"errors"

	"github.com/Dosada05/tournament-engine/models"
)

var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantConflict      = errors.New("tenant slug or database already registered")
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomConflict        = errors.New("room number already used in this tournament")
	ErrRoomStatusChanged   = errors.New("room status changed concurrently")
	ErrMatchStateNotFound  = errors.New("match state not found")
	ErrMatchStateConflict  = errors.New("match state already exists for this participant and match")
	ErrVersionConflict     = errors.New("record was modified by another writer")
	ErrLeaderboardNotFound = errors.New("leaderboard not found")
	ErrScoringNotFound     = errors.New("scoring config not found")
	ErrMatchLockTimeout    = errors.New("match lock is held by another writer")
)

// TenantRepository is the master catalog shared by every tenant.
type TenantRepository interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	UpdateStatus(ctx context.Context, id string, status models.TenantStatus) error
	List(ctx context.Context) ([]*models.Tenant, error)
}

type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id string) (*models.Room, error)
	// UpdateStatus moves the room from `from` to `to` and records the current
	// match number. ErrRoomStatusChanged is returned when the stored status
	// is no longer `from`.
	UpdateStatus(ctx context.Context, id string, from, to models.RoomStatus, currentMatch int) error
}

type MatchStateRepository interface {
	CreateBatch(ctx context.Context, states []*models.MatchState) error
	GetByID(ctx context.Context, id string) (*models.MatchState, error)
	ListByRoomMatch(ctx context.Context, roomID string, matchNumber int) ([]*models.MatchState, error)
	// CountActive counts states of the room and match that are active and not
	// disqualified.
	CountActive(ctx context.Context, roomID string, matchNumber int) (int, error)
	// Update writes state if the stored version still equals state.Version
	// and bumps the version on success.
	Update(ctx context.Context, state *models.MatchState) error
}

type LeaderboardRepository interface {
	Get(ctx context.Context, tournamentID, participantID string) (*models.Leaderboard, error)
	// Save inserts a leaderboard with Version 0 or replaces the stored one
	// when versions match. The version is bumped on success.
	Save(ctx context.Context, board *models.Leaderboard) error
	ListByTournament(ctx context.Context, tournamentID string) ([]*models.Leaderboard, error)
}

type ScoringRepository interface {
	GetForTournament(ctx context.Context, tournamentID string) (*models.ScoringConfig, error)
	SetForTournament(ctx context.Context, tournamentID string, cfg models.ScoringConfig) error
}

// MatchLocker serializes writers of one room and match across every process
// that shares the tenant store. Keys are scoped to the tenant store already.
type MatchLocker interface {
	// Lock blocks until the key is held or ctx ends. unlock is safe to call
	// more than once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Set is the typed repository registry of one tenant. It is built once when
// the tenant's store is opened.
type Set struct {
	Rooms        RoomRepository
	MatchStates  MatchStateRepository
	Leaderboards LeaderboardRepository
	Scoring      ScoringRepository
	Locks        MatchLocker
}
