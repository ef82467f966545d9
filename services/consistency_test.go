package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/realtime"
	"github.com/Dosada05/tournament-engine/repositories"
	"github.com/Dosada05/tournament-engine/scoring"
)

var errStoreDown = errors.New("store unavailable")

// flakyLeaderboards fails every Save of the given participant while failing
// is set. An empty participant fails all saves.
type flakyLeaderboards struct {
	repositories.LeaderboardRepository
	mu          sync.Mutex
	failing     bool
	participant string
}

func (r *flakyLeaderboards) Save(ctx context.Context, b *models.Leaderboard) error {
	r.mu.Lock()
	fail := r.failing && (r.participant == "" || r.participant == b.ParticipantID)
	r.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return r.LeaderboardRepository.Save(ctx, b)
}

func (r *flakyLeaderboards) setFailing(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = v
}

type flakyStates struct {
	repositories.MatchStateRepository
	mu      sync.Mutex
	failing bool
}

func (r *flakyStates) Update(ctx context.Context, s *models.MatchState) error {
	r.mu.Lock()
	fail := r.failing
	r.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return r.MatchStateRepository.Update(ctx, s)
}

func (r *flakyStates) setFailing(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = v
}

func TestCompleteKeepsStateActiveWhenLeaderboardFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	boards := &flakyLeaderboards{LeaderboardRepository: env.repos.Leaderboards, failing: true}
	env.repos.Leaderboards = boards
	room := env.createRoom(t, 3, 1)
	states := env.startMatch(t, room.ID, 1)
	id := states[0].ID

	if _, err := env.matches.CompleteMatch(ctx, env.scope, id, nil); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected the leaderboard failure, got %v", err)
	}
	if st := env.state(t, id); st.Phase() != models.PhaseActive || st.Placement != nil {
		t.Fatalf("state must stay active without a leaderboard entry, got %+v", st)
	}
	if _, err := env.repos.Leaderboards.Get(ctx, "tour-1", "p1"); !errors.Is(err, repositories.ErrLeaderboardNotFound) {
		t.Fatalf("expected no leaderboard, got %v", err)
	}

	// Once the store recovers the completion is applied exactly once and a
	// revert brings the board back to zero.
	boards.setFailing(false)
	done, err := env.matches.CompleteMatch(ctx, env.scope, id, nil)
	if err != nil {
		t.Fatalf("complete after recovery: %v", err)
	}
	if placementOf(done) != 3 {
		t.Fatalf("expected placement 3, got %d", placementOf(done))
	}
	if b := env.board(t, "p1"); b.MatchesPlayed != 1 || b.TotalPoints != done.Points {
		t.Fatalf("expected one applied match, got %+v", b)
	}
	if _, err := env.matches.RevertMatch(ctx, env.scope, id); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if b := env.board(t, "p1"); b.MatchesPlayed != 0 || b.TotalPoints != 0 || len(b.History) != 0 {
		t.Fatalf("expected an empty leaderboard after revert, got %+v", b)
	}
	env.effects.Wait()
}

func TestAutoCrownSkippedWhenWinnerLeaderboardFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.repos.Leaderboards = &flakyLeaderboards{LeaderboardRepository: env.repos.Leaderboards, failing: true, participant: "p2"}
	room := env.createRoom(t, 2, 1)
	states := env.startMatch(t, room.ID, 1)

	if _, err := env.matches.CompleteMatch(ctx, env.scope, states[0].ID, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if placementOf(env.state(t, states[0].ID)) != 2 {
		t.Fatalf("expected the first finisher to place 2nd")
	}
	winner := env.state(t, states[1].ID)
	if winner.Phase() != models.PhaseActive {
		t.Fatalf("winner must not be completed without its leaderboard entry, got %s", winner.Phase())
	}
	if _, err := env.repos.Leaderboards.Get(ctx, "tour-1", "p2"); !errors.Is(err, repositories.ErrLeaderboardNotFound) {
		t.Fatalf("expected no leaderboard for the winner, got %v", err)
	}
	env.effects.Wait()
}

func TestCompleteUndoesLeaderboardWhenStateWriteFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, 3, 1)
	states := env.startMatch(t, room.ID, 1)
	flaky := &flakyStates{MatchStateRepository: env.repos.MatchStates, failing: true}
	env.repos.MatchStates = flaky

	if _, err := env.matches.CompleteMatch(ctx, env.scope, states[0].ID, nil); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected the state write failure, got %v", err)
	}
	b := env.board(t, "p1")
	if b.MatchesPlayed != 0 || b.TotalPoints != 0 || len(b.History) != 0 {
		t.Fatalf("leaderboard change must be undone, got %+v", b)
	}
	if st := env.state(t, states[0].ID); st.Phase() != models.PhaseActive {
		t.Fatalf("expected active state, got %s", st.Phase())
	}
	env.effects.Wait()
	if n := env.broadcaster.count(realtime.EventMatchComplete); n != 0 {
		t.Fatalf("no completion may be announced, got %d", n)
	}
}

func TestRevertRestoresLeaderboardWhenStateWriteFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, 3, 1)
	states := env.startMatch(t, room.ID, 1)
	id := states[0].ID

	if _, err := env.matches.RecordKill(ctx, env.scope, id, "p1-1", 3); err != nil {
		t.Fatalf("record kill: %v", err)
	}
	two := 2
	done, err := env.matches.CompleteMatch(ctx, env.scope, id, &two)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	before := env.board(t, "p1")

	flaky := &flakyStates{MatchStateRepository: env.repos.MatchStates, failing: true}
	env.repos.MatchStates = flaky
	if _, err := env.matches.RevertMatch(ctx, env.scope, id); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected the state write failure, got %v", err)
	}

	after := env.board(t, "p1")
	if after.MatchesPlayed != before.MatchesPlayed || after.TotalPoints != before.TotalPoints ||
		after.TotalKills != before.TotalKills || len(after.History) != len(before.History) {
		t.Fatalf("leaderboard not restored:\nbefore %+v\nafter  %+v", before, after)
	}
	st := env.state(t, id)
	if st.Phase() != models.PhaseCompleted || st.Points != done.Points {
		t.Fatalf("state must stay completed, got %s with %v points", st.Phase(), st.Points)
	}

	// The state and its leaderboard entry still revert together afterwards.
	flaky.setFailing(false)
	if _, err := env.matches.RevertMatch(ctx, env.scope, id); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if b := env.board(t, "p1"); b.MatchesPlayed != 0 || b.TotalPoints != 0 {
		t.Fatalf("expected an empty leaderboard, got %+v", b)
	}
	env.effects.Wait()
}

// heldLocks records the store lock keys currently held.
type heldLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
}

func (l *heldLocks) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, fmt.Errorf("lock %s taken twice", key)
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

func (l *heldLocks) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}

// lockCheckedStates notes whether the store lock was held on every count.
type lockCheckedStates struct {
	repositories.MatchStateRepository
	locks    *heldLocks
	mu       sync.Mutex
	unlocked []string
	counts   int
}

func (r *lockCheckedStates) CountActive(ctx context.Context, roomID string, matchNumber int) (int, error) {
	key := fmt.Sprintf("%s/%d", roomID, matchNumber)
	r.mu.Lock()
	r.counts++
	if !r.locks.isHeld(key) {
		r.unlocked = append(r.unlocked, key)
	}
	r.mu.Unlock()
	return r.MatchStateRepository.CountActive(ctx, roomID, matchNumber)
}

func TestPlacementCountRunsUnderStoreLock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	locks := &heldLocks{held: make(map[string]bool)}
	states := &lockCheckedStates{MatchStateRepository: env.repos.MatchStates, locks: locks}
	env.repos.Locks = locks
	env.repos.MatchStates = states

	room := env.createRoom(t, 3, 1)
	started := env.startMatch(t, room.ID, 1)
	for _, st := range started[:2] {
		if _, err := env.matches.CompleteMatch(ctx, env.scope, st.ID, nil); err != nil {
			t.Fatalf("complete %s: %v", st.ID, err)
		}
	}
	if _, err := env.matches.FinishRoom(ctx, env.scope, room.ID); err != nil {
		t.Fatalf("finish room: %v", err)
	}
	env.effects.Wait()

	if states.counts == 0 {
		t.Fatalf("expected placement counts")
	}
	if len(states.unlocked) != 0 {
		t.Fatalf("counted without the store lock: %v", states.unlocked)
	}
	key := room.ID + "/1"
	for _, k := range locks.acquired {
		if k != key {
			t.Fatalf("unexpected lock key %s, want %s", k, key)
		}
	}
	// Start, two completions and the room finish.
	if len(locks.acquired) != 4 {
		t.Fatalf("expected 4 store lock acquisitions, got %d", len(locks.acquired))
	}
	if locks.isHeld(key) {
		t.Fatalf("store lock leaked")
	}
}

func TestStoreLockTimeoutIsStale(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 2, 1)
	states := env.startMatch(t, room.ID, 1)

	release, err := env.repos.Locks.Lock(context.Background(), room.ID+"/1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = env.matches.RecordKill(ctx, env.scope, states[0].ID, "p1-1", 1)
	expectErr(t, err, ErrStaleState)
}

// stallingBroadcaster holds the kill update carrying stallKills until
// release is closed.
type stallingBroadcaster struct {
	recordingBroadcaster
	stallKills int
	release    chan struct{}
}

func (b *stallingBroadcaster) Publish(ctx context.Context, channel string, eventType realtime.EventType, payload interface{}) error {
	if u, ok := payload.(realtime.KillUpdate); ok && u.Kills == b.stallKills {
		<-b.release
	}
	return b.recordingBroadcaster.Publish(ctx, channel, eventType, payload)
}

func TestEventsOfOneChannelKeepCommitOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	broadcaster := &stallingBroadcaster{stallKills: 1, release: make(chan struct{})}
	matches := NewMatchService(env.leaderboards, broadcaster, env.history, env.effects, scoring.DefaultConfig(), discardLogger())
	room := env.createRoom(t, 2, 1)
	states, err := matches.StartMatch(ctx, env.scope, room.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, kills := range []int{1, 2, 3} {
		if _, err := matches.RecordKill(ctx, env.scope, states[0].ID, "p1-1", kills); err != nil {
			t.Fatalf("record kill %d: %v", kills, err)
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(broadcaster.release)
	env.effects.Wait()

	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	var got []int
	for _, e := range broadcaster.events {
		if u, ok := e.payload.(realtime.KillUpdate); ok {
			got = append(got, u.Kills)
		}
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected kill updates in commit order [1 2 3], got %v", got)
	}
	if broadcaster.events[0].eventType != realtime.EventMatchStarted {
		t.Fatalf("expected matchStarted first, got %s", broadcaster.events[0].eventType)
	}
}

func TestListMatchFollowsRosterOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t, 4, 1)
	env.startMatch(t, room.ID, 1)

	list, err := env.matches.ListMatch(ctx, env.scope, room.ID, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != len(room.Roster) {
		t.Fatalf("expected %d states, got %d", len(room.Roster), len(list))
	}
	for i, st := range list {
		if st.RosterIndex != i || st.ParticipantID != room.Roster[i].ParticipantID {
			t.Fatalf("position %d: got %s at roster index %d", i, st.ParticipantID, st.RosterIndex)
		}
	}
}
