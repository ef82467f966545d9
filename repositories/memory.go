package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/tournament-engine/models"
)

// NewMemorySet returns a process-local repository registry. It backs the
// "memory" store driver and the service tests.
func NewMemorySet() *Set {
	return &Set{
		Rooms:        &memoryRoomRepository{rooms: make(map[string]*models.Room)},
		MatchStates:  &memoryMatchStateRepository{states: make(map[string]*models.MatchState)},
		Leaderboards: &memoryLeaderboardRepository{boards: make(map[string]*models.Leaderboard)},
		Scoring:      &memoryScoringRepository{configs: make(map[string]models.ScoringConfig)},
		Locks:        &memoryMatchLocker{held: make(map[string]chan struct{})},
	}
}

// memoryMatchLocker hands out one token per key. A waiter blocks on the
// channel of the current holder, which is closed on unlock.
type memoryMatchLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func (l *memoryMatchLocker) Lock(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		released, busy := l.held[key]
		if !busy {
			mine := make(chan struct{})
			l.held[key] = mine
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(mine)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-released:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrMatchLockTimeout, key, ctx.Err())
		}
	}
}

func cloneRoom(r *models.Room) *models.Room {
	out := *r
	out.Roster = make([]models.RosterEntry, len(r.Roster))
	for i, e := range r.Roster {
		out.Roster[i] = e
		out.Roster[i].Players = append([]models.RosterPlayer(nil), e.Players...)
	}
	return &out
}

type memoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*models.Room
}

func (r *memoryRoomRepository) Create(_ context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rooms {
		if existing.ID == room.ID ||
			(existing.TournamentID == room.TournamentID && existing.RoomNumber == room.RoomNumber) {
			return ErrRoomConflict
		}
	}
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	r.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (r *memoryRoomRepository) GetByID(_ context.Context, id string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (r *memoryRoomRepository) UpdateStatus(_ context.Context, id string, from, to models.RoomStatus, currentMatch int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Status != from {
		return ErrRoomStatusChanged
	}
	room.Status = to
	room.CurrentMatch = currentMatch
	room.UpdatedAt = time.Now().UTC()
	return nil
}

type memoryMatchStateRepository struct {
	mu     sync.RWMutex
	states map[string]*models.MatchState
	seq    int64
	order  map[string]int64
}

func (r *memoryMatchStateRepository) CreateBatch(_ context.Context, states []*models.MatchState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.order == nil {
		r.order = make(map[string]int64)
	}
	seen := make(map[string]struct{}, len(states))
	for _, s := range states {
		key := fmt.Sprintf("%s/%d/%s", s.RoomID, s.MatchNumber, s.ParticipantID)
		if _, dup := seen[key]; dup {
			return ErrMatchStateConflict
		}
		seen[key] = struct{}{}
		if _, ok := r.states[s.ID]; ok {
			return ErrMatchStateConflict
		}
		for _, existing := range r.states {
			if existing.RoomID == s.RoomID && existing.MatchNumber == s.MatchNumber &&
				existing.ParticipantID == s.ParticipantID {
				return ErrMatchStateConflict
			}
		}
	}
	for _, s := range states {
		r.seq++
		r.order[s.ID] = r.seq
		r.states[s.ID] = s.Clone()
	}
	return nil
}

func (r *memoryMatchStateRepository) GetByID(_ context.Context, id string) (*models.MatchState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[id]
	if !ok {
		return nil, ErrMatchStateNotFound
	}
	return s.Clone(), nil
}

func (r *memoryMatchStateRepository) ListByRoomMatch(_ context.Context, roomID string, matchNumber int) ([]*models.MatchState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.MatchState, 0)
	for _, s := range r.states {
		if s.RoomID == roomID && s.MatchNumber == matchNumber {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RosterIndex != out[j].RosterIndex {
			return out[i].RosterIndex < out[j].RosterIndex
		}
		return r.order[out[i].ID] < r.order[out[j].ID]
	})
	return out, nil
}

func (r *memoryMatchStateRepository) CountActive(_ context.Context, roomID string, matchNumber int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.states {
		if s.RoomID == roomID && s.MatchNumber == matchNumber && s.CountsAsActive() {
			n++
		}
	}
	return n, nil
}

func (r *memoryMatchStateRepository) Update(_ context.Context, s *models.MatchState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.states[s.ID]
	if !ok {
		return ErrMatchStateNotFound
	}
	if stored.Version != s.Version {
		return ErrVersionConflict
	}
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	r.states[s.ID] = s.Clone()
	return nil
}

type memoryLeaderboardRepository struct {
	mu     sync.RWMutex
	boards map[string]*models.Leaderboard
}

func (r *memoryLeaderboardRepository) Get(_ context.Context, tournamentID, participantID string) (*models.Leaderboard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.boards[models.LeaderboardID(tournamentID, participantID)]
	if !ok {
		return nil, ErrLeaderboardNotFound
	}
	return b.Clone(), nil
}

func (r *memoryLeaderboardRepository) Save(_ context.Context, b *models.Leaderboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := models.LeaderboardID(b.TournamentID, b.ParticipantID)
	stored, ok := r.boards[id]
	switch {
	case b.Version == 0 && ok:
		return ErrVersionConflict
	case b.Version != 0 && (!ok || stored.Version != b.Version):
		return ErrVersionConflict
	}
	b.ID = id
	b.Version++
	b.UpdatedAt = time.Now().UTC()
	r.boards[id] = b.Clone()
	return nil
}

func (r *memoryLeaderboardRepository) ListByTournament(_ context.Context, tournamentID string) ([]*models.Leaderboard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Leaderboard, 0)
	for _, b := range r.boards {
		if b.TournamentID == tournamentID {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i], out[j]
		if a.TotalPoints != c.TotalPoints {
			return a.TotalPoints > c.TotalPoints
		}
		if a.TotalKills != c.TotalKills {
			return a.TotalKills > c.TotalKills
		}
		if a.Wins != c.Wins {
			return a.Wins > c.Wins
		}
		return a.ParticipantID < c.ParticipantID
	})
	return out, nil
}

type memoryScoringRepository struct {
	mu      sync.RWMutex
	configs map[string]models.ScoringConfig
}

func (r *memoryScoringRepository) GetForTournament(_ context.Context, tournamentID string) (*models.ScoringConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[tournamentID]
	if !ok {
		return nil, ErrScoringNotFound
	}
	out := cfg.Clone()
	return &out, nil
}

func (r *memoryScoringRepository) SetForTournament(_ context.Context, tournamentID string, cfg models.ScoringConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[tournamentID] = cfg.Clone()
	return nil
}

type memoryTenantRepository struct {
	mu      sync.RWMutex
	tenants map[string]*models.Tenant
}

// NewMemoryTenantRepository returns a catalog holding the given tenants.
func NewMemoryTenantRepository(seed ...*models.Tenant) TenantRepository {
	r := &memoryTenantRepository{tenants: make(map[string]*models.Tenant)}
	for _, t := range seed {
		cp := *t
		r.tenants[t.ID] = &cp
	}
	return r
}

func (r *memoryTenantRepository) Create(_ context.Context, t *models.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tenants {
		if existing.ID == t.ID || existing.Slug == t.Slug || existing.DBName == t.DBName {
			return ErrTenantConflict
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *memoryTenantRepository) GetBySlug(_ context.Context, slug string) (*models.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTenantNotFound
}

func (r *memoryTenantRepository) GetByID(_ context.Context, id string) (*models.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memoryTenantRepository) UpdateStatus(_ context.Context, id string, status models.TenantStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	t.Status = status
	return nil
}

func (r *memoryTenantRepository) List(_ context.Context) ([]*models.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}
