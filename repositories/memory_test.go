package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dosada05/tournament-engine/models"
)

func newState(id, participant string, match int) *models.MatchState {
	return &models.MatchState{
		ID:            id,
		RoomID:        "room-1",
		TournamentID:  "tour-1",
		MatchNumber:   match,
		ParticipantID: participant,
		IsActive:      true,
	}
}

func TestMemoryRoomRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySet().Rooms
	room := &models.Room{ID: "room-1", TournamentID: "tour-1", RoomNumber: 1, Status: models.RoomStatusPending,
		Roster: []models.RosterEntry{{ParticipantID: "p1", Players: []models.RosterPlayer{{PlayerID: "u1"}}}}}
	if err := repo.Create(ctx, room); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dup := &models.Room{ID: "room-2", TournamentID: "tour-1", RoomNumber: 1}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrRoomConflict) {
		t.Fatalf("expected room conflict, got %v", err)
	}

	got, err := repo.GetByID(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	got.Roster[0].Players[0].PlayerID = "mutated"
	again, _ := repo.GetByID(ctx, "room-1")
	if again.Roster[0].Players[0].PlayerID != "u1" {
		t.Fatal("returned room aliases stored roster")
	}

	if err := repo.UpdateStatus(ctx, "room-1", models.RoomStatusReady, models.RoomStatusOngoing, 1); !errors.Is(err, ErrRoomStatusChanged) {
		t.Fatalf("expected status conflict, got %v", err)
	}
	if err := repo.UpdateStatus(ctx, "room-1", models.RoomStatusPending, models.RoomStatusReady, 1); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryMatchStateBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySet().MatchStates
	if err := repo.CreateBatch(ctx, []*models.MatchState{newState("s1", "p1", 1), newState("s2", "p2", 1)}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	err := repo.CreateBatch(ctx, []*models.MatchState{newState("s3", "p3", 1), newState("s4", "p1", 1)})
	if !errors.Is(err, ErrMatchStateConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "s3"); !errors.Is(err, ErrMatchStateNotFound) {
		t.Fatalf("partial batch was written: %v", err)
	}
	err = repo.CreateBatch(ctx, []*models.MatchState{newState("s5", "p5", 2), newState("s6", "p5", 2)})
	if !errors.Is(err, ErrMatchStateConflict) {
		t.Fatalf("expected conflict inside batch, got %v", err)
	}
}

func TestMemoryMatchStateOrderingAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySet().MatchStates
	ids := []string{"z", "a", "m"}
	batch := make([]*models.MatchState, 0, len(ids))
	for i, id := range ids {
		batch = append(batch, newState(id, ids[i]+"-p", 1))
	}
	if err := repo.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	list, err := repo.ListByRoomMatch(ctx, "room-1", 1)
	if err != nil {
		t.Fatalf("ListByRoomMatch: %v", err)
	}
	for i, s := range list {
		if s.ID != ids[i] {
			t.Fatalf("expected insertion order %v, got %s at %d", ids, s.ID, i)
		}
	}

	done := list[1]
	done.IsActive = false
	done.IsCompleted = true
	if err := repo.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}
	n, err := repo.CountActive(ctx, "room-1", 1)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 active, got %d (%v)", n, err)
	}
}

func TestMemoryMatchStateListFollowsRosterPosition(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySet().MatchStates
	batch := []*models.MatchState{newState("s-a", "p-a", 1), newState("s-b", "p-b", 1), newState("s-c", "p-c", 1)}
	batch[0].RosterIndex = 2
	batch[1].RosterIndex = 0
	batch[2].RosterIndex = 1
	if err := repo.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	list, err := repo.ListByRoomMatch(ctx, "room-1", 1)
	if err != nil {
		t.Fatalf("ListByRoomMatch: %v", err)
	}
	want := []string{"p-b", "p-c", "p-a"}
	for i, s := range list {
		if s.ParticipantID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], s.ParticipantID)
		}
	}
}

func TestMemoryMatchStateCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySet().MatchStates
	if err := repo.CreateBatch(ctx, []*models.MatchState{newState("s1", "p1", 1)}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	a, _ := repo.GetByID(ctx, "s1")
	b, _ := repo.GetByID(ctx, "s1")

	a.TotalKills = 3
	if err := repo.Update(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if a.Version != 1 {
		t.Fatalf("version not bumped: %d", a.Version)
	}
	b.TotalKills = 5
	if err := repo.Update(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	stored, _ := repo.GetByID(ctx, "s1")
	if stored.TotalKills != 3 {
		t.Fatalf("stale write applied: %d", stored.TotalKills)
	}
}

func TestMemoryLeaderboardSave(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySet().Leaderboards

	first := &models.Leaderboard{TournamentID: "tour-1", ParticipantID: "p1", TotalPoints: 10}
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, &models.Leaderboard{TournamentID: "tour-1", ParticipantID: "p1"}); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected conflict creating twice, got %v", err)
	}

	stale := first.Clone()
	first.TotalPoints = 20
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	stale.TotalPoints = 99
	if err := repo.Save(ctx, stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected stale conflict, got %v", err)
	}

	for _, b := range []*models.Leaderboard{
		{TournamentID: "tour-1", ParticipantID: "p2", TotalPoints: 20, TotalKills: 9},
		{TournamentID: "tour-1", ParticipantID: "p3", TotalPoints: 30},
		{TournamentID: "tour-2", ParticipantID: "p4", TotalPoints: 50},
	} {
		if err := repo.Save(ctx, b); err != nil {
			t.Fatalf("Save %s: %v", b.ParticipantID, err)
		}
	}
	list, err := repo.ListByTournament(ctx, "tour-1")
	if err != nil {
		t.Fatalf("ListByTournament: %v", err)
	}
	want := []string{"p3", "p2", "p1"}
	if len(list) != len(want) {
		t.Fatalf("expected %d boards, got %d", len(want), len(list))
	}
	for i, b := range list {
		if b.ParticipantID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], b.ParticipantID)
		}
	}
}

func TestMemoryScoringAndTenants(t *testing.T) {
	ctx := context.Background()
	scoring := NewMemorySet().Scoring
	if _, err := scoring.GetForTournament(ctx, "tour-1"); !errors.Is(err, ErrScoringNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	cfg := models.ScoringConfig{KillMultiplier: 2, PlacementPoints: map[int]float64{1: 15}}
	if err := scoring.SetForTournament(ctx, "tour-1", cfg); err != nil {
		t.Fatalf("SetForTournament: %v", err)
	}
	cfg.PlacementPoints[1] = 0
	got, err := scoring.GetForTournament(ctx, "tour-1")
	if err != nil || got.PlacementPoints[1] != 15 {
		t.Fatalf("stored config aliased caller map: %+v (%v)", got, err)
	}

	tenants := NewMemoryTenantRepository(&models.Tenant{ID: "t1", Slug: "acme", DBName: "tenant_acme", Status: models.TenantStatusActive})
	if err := tenants.Create(ctx, &models.Tenant{ID: "t2", Slug: "acme", DBName: "tenant_other"}); !errors.Is(err, ErrTenantConflict) {
		t.Fatalf("expected slug conflict, got %v", err)
	}
	if err := tenants.UpdateStatus(ctx, "t1", models.TenantStatusSuspended); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	tenant, err := tenants.GetBySlug(ctx, "acme")
	if err != nil || tenant.Status != models.TenantStatusSuspended {
		t.Fatalf("unexpected tenant: %+v (%v)", tenant, err)
	}
}

func TestMemoryMatchLockerSerializesKey(t *testing.T) {
	locks := NewMemorySet().Locks
	unlock, err := locks.Lock(context.Background(), "room-1/1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	other, err := locks.Lock(context.Background(), "room-1/2")
	if err != nil {
		t.Fatalf("a different key must not block: %v", err)
	}
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locks.Lock(ctx, "room-1/1"); !errors.Is(err, ErrMatchLockTimeout) {
		t.Fatalf("expected lock timeout, got %v", err)
	}

	acquired := make(chan func())
	go func() {
		next, err := locks.Lock(context.Background(), "room-1/1")
		if err != nil {
			t.Errorf("waiting Lock: %v", err)
			close(acquired)
			return
		}
		acquired <- next
	}()
	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	unlock()
	select {
	case next, ok := <-acquired:
		if !ok {
			t.Fatal("waiter failed")
		}
		next()
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by unlock")
	}
}
