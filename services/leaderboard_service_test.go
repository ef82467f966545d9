package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/repositories"
	"github.com/Dosada05/tournament-engine/scoring"
)

func completedState(id string, matchNumber, placement int, kills ...int) *models.MatchState {
	st := &models.MatchState{
		ID:              id,
		ParticipantID:   "p1",
		ParticipantName: "Squad 1",
		TournamentID:    "tour-1",
		RoomID:          "room-1",
		MatchNumber:     matchNumber,
		Placement:       intPtr(placement),
		IsCompleted:     true,
		Scoring:         scoring.DefaultConfig(),
	}
	for i, k := range kills {
		st.Players = append(st.Players, models.PlayerStat{PlayerID: []string{"a", "b", "c"}[i], Kills: k})
	}
	scoring.Apply(st)
	return st
}

func TestApplyRevertRestoresAggregate(t *testing.T) {
	ctx := context.Background()
	repos := repositories.NewMemorySet()
	svc := NewLeaderboardService(discardLogger())

	base := completedState("s0", 1, 5, 2, 1)
	if _, err := svc.ApplyMatch(ctx, repos, base); err != nil {
		t.Fatalf("apply base: %v", err)
	}
	before, err := repos.Leaderboards.Get(ctx, "tour-1", "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	sequence := []*models.MatchState{
		completedState("s1", 2, 1, 4, 3),
		completedState("s2", 3, 3, 0, 7),
		completedState("s3", 4, 2, 1, 1),
	}
	for _, st := range sequence {
		if _, err := svc.ApplyMatch(ctx, repos, st); err != nil {
			t.Fatalf("apply %s: %v", st.ID, err)
		}
	}
	mid, _ := repos.Leaderboards.Get(ctx, "tour-1", "p1")
	if mid.MatchesPlayed != 4 || mid.Wins != 1 || mid.Top3 != 3 || mid.BestPlacement != 1 || mid.HighestKills != 7 {
		t.Fatalf("unexpected aggregate after applies: %+v", mid)
	}
	if len(mid.RecentForm) != 4 || mid.RecentForm[0].StateID != "s3" {
		t.Fatalf("recent form should be newest first, got %+v", mid.RecentForm)
	}

	for i := len(sequence) - 1; i >= 0; i-- {
		if _, err := svc.RevertMatch(ctx, repos, sequence[i]); err != nil {
			t.Fatalf("revert %s: %v", sequence[i].ID, err)
		}
	}
	after, _ := repos.Leaderboards.Get(ctx, "tour-1", "p1")

	before.Version, after.Version = 0, 0
	before.UpdatedAt = after.UpdatedAt
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("aggregate not restored:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestRevertOutOfOrderRemovesMatchingEntry(t *testing.T) {
	ctx := context.Background()
	repos := repositories.NewMemorySet()
	svc := NewLeaderboardService(discardLogger())

	first := completedState("s1", 1, 1, 5)
	second := completedState("s2", 2, 4, 1)
	for _, st := range []*models.MatchState{first, second} {
		if _, err := svc.ApplyMatch(ctx, repos, st); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	b, err := svc.RevertMatch(ctx, repos, first)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if len(b.History) != 1 || b.History[0].StateID != "s2" {
		t.Fatalf("expected only s2 in history, got %+v", b.History)
	}
	if b.BestPlacement != 4 || b.HighestKills != 1 || b.Wins != 0 {
		t.Fatalf("derived fields not rebuilt: %+v", b)
	}
}

func TestRecentFormIsCapped(t *testing.T) {
	ctx := context.Background()
	repos := repositories.NewMemorySet()
	svc := NewLeaderboardService(discardLogger())

	var last *models.Leaderboard
	for i := 1; i <= models.RecentFormSize+3; i++ {
		b, err := svc.ApplyMatch(ctx, repos, completedState("s"+string(rune('0'+i)), i, 10, 1))
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		last = b
	}
	if len(last.RecentForm) != models.RecentFormSize {
		t.Fatalf("expected %d form entries, got %d", models.RecentFormSize, len(last.RecentForm))
	}
	if last.MatchesPlayed != models.RecentFormSize+3 {
		t.Fatalf("unexpected matches played: %d", last.MatchesPlayed)
	}
}

type conflictingLeaderboards struct {
	repositories.LeaderboardRepository
	failures int
	calls    int
	err      error
}

func (c *conflictingLeaderboards) Save(ctx context.Context, b *models.Leaderboard) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	if c.calls <= c.failures {
		return repositories.ErrVersionConflict
	}
	return c.LeaderboardRepository.Save(ctx, b)
}

func TestFoldRetriesVersionConflicts(t *testing.T) {
	ctx := context.Background()
	repos := repositories.NewMemorySet()
	flaky := &conflictingLeaderboards{LeaderboardRepository: repos.Leaderboards, failures: 2}
	repos.Leaderboards = flaky
	svc := NewLeaderboardService(discardLogger())

	if _, err := svc.ApplyMatch(ctx, repos, completedState("s1", 1, 1, 1)); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 save attempts, got %d", flaky.calls)
	}

	flaky.calls, flaky.failures = 0, 5
	_, err := svc.ApplyMatch(ctx, repos, completedState("s2", 2, 1, 1))
	expectErr(t, err, ErrStaleState)
	if flaky.calls != leaderboardSaveAttempts {
		t.Fatalf("expected %d attempts, got %d", leaderboardSaveAttempts, flaky.calls)
	}

	flaky.calls, flaky.failures, flaky.err = 0, 0, errors.New("disk full")
	_, err = svc.ApplyMatch(ctx, repos, completedState("s3", 3, 1, 1))
	if err == nil || errors.Is(err, ErrStaleState) {
		t.Fatalf("expected the store error, got %v", err)
	}
	if flaky.calls != 1 {
		t.Fatalf("only version conflicts are retried, got %d attempts", flaky.calls)
	}
}

func TestStandingsOrdering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i, st := range []*models.MatchState{
		completedState("s1", 1, 3, 1),
		completedState("s2", 1, 1, 0),
		completedState("s3", 1, 2, 9),
	} {
		st.ParticipantID = []string{"p1", "p2", "p3"}[i]
		if _, err := env.leaderboards.ApplyMatch(ctx, env.repos, st); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	boards, err := env.leaderboards.Standings(ctx, env.scope, "tour-1")
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	want := []string{"p3", "p2", "p1"}
	for i, id := range want {
		if boards[i].ParticipantID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, boards[i].ParticipantID)
		}
	}

	_, err = env.leaderboards.Standings(ctx, env.scope, " ")
	expectErr(t, err, ErrValidationFailed)
}
