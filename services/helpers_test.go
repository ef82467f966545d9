package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/realtime"
	"github.com/Dosada05/tournament-engine/repositories"
	"github.com/Dosada05/tournament-engine/scoring"
	"github.com/Dosada05/tournament-engine/storage"
)

type publishedEvent struct {
	channel   string
	eventType realtime.EventType
	payload   interface{}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (b *recordingBroadcaster) Publish(_ context.Context, channel string, eventType realtime.EventType, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{channel: channel, eventType: eventType, payload: payload})
	return b.err
}

func (b *recordingBroadcaster) count(eventType realtime.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

type recordingHistory struct {
	mu      sync.Mutex
	records []storage.HistoryRecord
}

func (h *recordingHistory) Record(_ context.Context, rec storage.HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *recordingHistory) actions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.records))
	for i, r := range h.records {
		out[i] = r.Action
	}
	return out
}

type testEnv struct {
	repos        *repositories.Set
	scope        Scope
	matches      MatchService
	rooms        RoomService
	leaderboards LeaderboardService
	effects      *SideEffects
	broadcaster  *recordingBroadcaster
	history      *recordingHistory
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := discardLogger()
	env := &testEnv{
		repos:       repositories.NewMemorySet(),
		broadcaster: &recordingBroadcaster{},
		history:     &recordingHistory{},
		effects:     NewSideEffects(logger),
	}
	env.scope = Scope{
		Tenant: &models.Tenant{ID: "t1", Slug: "acme", Status: models.TenantStatusActive},
		Repos:  env.repos,
		Caller: models.Identity{UserID: "org-1", Role: models.RoleOrganizer},
	}
	env.leaderboards = NewLeaderboardService(logger)
	env.matches = NewMatchService(env.leaderboards, env.broadcaster, env.history, env.effects, scoring.DefaultConfig(), logger)
	env.rooms = NewRoomService(scoring.DefaultConfig(), logger)
	return env
}

func squadRoster(squads, playersPerSquad int) []models.RosterEntry {
	roster := make([]models.RosterEntry, 0, squads)
	for i := 0; i < squads; i++ {
		entry := models.RosterEntry{
			ParticipantID: fmt.Sprintf("p%d", i+1),
			Name:          fmt.Sprintf("Squad %d", i+1),
		}
		for j := 0; j < playersPerSquad; j++ {
			entry.Players = append(entry.Players, models.RosterPlayer{
				PlayerID: fmt.Sprintf("p%d-%d", i+1, j+1),
				Name:     fmt.Sprintf("Player %d.%d", i+1, j+1),
			})
		}
		roster = append(roster, entry)
	}
	return roster
}

func (e *testEnv) createRoom(t *testing.T, squads, playersPerSquad int) *models.Room {
	t.Helper()
	mode := models.ModeSquad
	if playersPerSquad == 1 {
		mode = models.ModeSolo
	}
	room, err := e.rooms.CreateRoom(context.Background(), e.scope, CreateRoomInput{
		TournamentID: "tour-1",
		RoomNumber:   1,
		Mode:         mode,
		Roster:       squadRoster(squads, playersPerSquad),
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

func (e *testEnv) startMatch(t *testing.T, roomID string, matchNumber int) []*models.MatchState {
	t.Helper()
	states, err := e.matches.StartMatch(context.Background(), e.scope, roomID, matchNumber)
	if err != nil {
		t.Fatalf("start match %d: %v", matchNumber, err)
	}
	return states
}

func (e *testEnv) state(t *testing.T, id string) *models.MatchState {
	t.Helper()
	st, err := e.repos.MatchStates.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get state %s: %v", id, err)
	}
	return st
}

func (e *testEnv) board(t *testing.T, participantID string) *models.Leaderboard {
	t.Helper()
	b, err := e.repos.Leaderboards.Get(context.Background(), "tour-1", participantID)
	if err != nil {
		t.Fatalf("get leaderboard %s: %v", participantID, err)
	}
	return b
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func placementOf(st *models.MatchState) int {
	if st.Placement == nil {
		return 0
	}
	return *st.Placement
}
