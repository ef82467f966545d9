package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/realtime"
	"github.com/Dosada05/tournament-engine/repositories"
	"github.com/Dosada05/tournament-engine/scoring"
	"github.com/Dosada05/tournament-engine/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type MatchService interface {
	StartMatch(ctx context.Context, scope Scope, roomID string, matchNumber int) ([]*models.MatchState, error)
	GetState(ctx context.Context, scope Scope, stateID string) (*models.MatchState, error)
	ListMatch(ctx context.Context, scope Scope, roomID string, matchNumber int) ([]*models.MatchState, error)
	RecordKill(ctx context.Context, scope Scope, stateID, playerID string, kills int) (*models.MatchState, error)
	ToggleElimination(ctx context.Context, scope Scope, stateID, playerID string, eliminated bool) (*models.MatchState, error)
	// CompleteMatch finalizes an active state. Without an explicit placement
	// the state is ranked by the number of participants still active in the
	// same room and match, itself included.
	CompleteMatch(ctx context.Context, scope Scope, stateID string, placement *int) (*models.MatchState, error)
	Disqualify(ctx context.Context, scope Scope, stateID, reason string) (*models.MatchState, error)
	RevokeDisqualification(ctx context.Context, scope Scope, stateID string) (*models.MatchState, error)
	// RevertMatch reopens a completed state. Placement and points are
	// cleared, not restored.
	RevertMatch(ctx context.Context, scope Scope, stateID string) (*models.MatchState, error)
	FinishRoom(ctx context.Context, scope Scope, roomID string) (*models.Room, error)
}

type matchService struct {
	leaderboards   LeaderboardService
	broadcaster    realtime.Broadcaster
	history        storage.HistorySink
	effects        *SideEffects
	defaultScoring models.ScoringConfig
	logger         *slog.Logger

	locks *keyedLocker
	now   func() time.Time
}

func NewMatchService(
	leaderboards LeaderboardService,
	broadcaster realtime.Broadcaster,
	history storage.HistorySink,
	effects *SideEffects,
	defaultScoring models.ScoringConfig,
	logger *slog.Logger,
) MatchService {
	if broadcaster == nil {
		broadcaster = realtime.NopBroadcaster{}
	}
	if history == nil {
		history = storage.NopHistorySink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if effects == nil {
		effects = NewSideEffects(logger)
	}
	return &matchService{
		leaderboards:   leaderboards,
		broadcaster:    broadcaster,
		history:        history,
		effects:        effects,
		defaultScoring: defaultScoring.Clone(),
		logger:         logger,
		locks:          newKeyedLocker(),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *matchService) StartMatch(ctx context.Context, scope Scope, roomID string, matchNumber int) ([]*models.MatchState, error) {
	if matchNumber < 1 {
		return nil, fmt.Errorf("%w: match number must be positive", ErrValidationFailed)
	}
	if err := requireRoom(scope.Caller, roomID); err != nil {
		return nil, err
	}

	unlock, err := s.lockMatch(ctx, scope, roomID, matchNumber)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		room     *models.Room
		existing []*models.MatchState
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		room, err = scope.Repos.Rooms.GetByID(gctx, roomID)
		return err
	})
	g.Go(func() error {
		var err error
		existing, err = scope.Repos.MatchStates.ListByRoomMatch(gctx, roomID, matchNumber)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, translateRepoError(err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: match %d of room %s already started", ErrDuplicateResource, matchNumber, roomID)
	}
	if len(room.Roster) == 0 {
		return nil, fmt.Errorf("%w: room %s has an empty roster", ErrValidationFailed, roomID)
	}
	if matchNumber <= room.CurrentMatch {
		return nil, fmt.Errorf("%w: match %d does not follow current match %d", ErrInvalidTransition, matchNumber, room.CurrentMatch)
	}

	switch room.Status {
	case models.RoomStatusCompleted:
		return nil, fmt.Errorf("%w: room %s is completed", ErrInvalidTransition, roomID)
	case models.RoomStatusPending:
		if err := scope.Repos.Rooms.UpdateStatus(ctx, roomID, models.RoomStatusPending, models.RoomStatusReady, room.CurrentMatch); err != nil {
			return nil, translateRepoError(err)
		}
		room.Status = models.RoomStatusReady
	case models.RoomStatusOngoing:
		if err := s.requireMatchFinished(ctx, scope, room); err != nil {
			return nil, err
		}
	}

	cfg, err := s.scoringFor(ctx, scope.Repos, room.TournamentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	states := make([]*models.MatchState, 0, len(room.Roster))
	for i := range room.Roster {
		states = append(states, models.NewMatchState(uuid.NewString(), room, i, matchNumber, cfg, now))
	}
	if err := scope.Repos.MatchStates.CreateBatch(ctx, states); err != nil {
		return nil, translateRepoError(err)
	}
	if err := scope.Repos.Rooms.UpdateStatus(ctx, roomID, room.Status, models.RoomStatusOngoing, matchNumber); err != nil {
		return nil, translateRepoError(err)
	}
	transitionsTotal.WithLabelValues("start").Inc()

	ids := make([]string, len(states))
	for i, st := range states {
		ids[i] = st.ID
	}
	s.publish(ctx, scope, realtime.EventMatchStarted, realtime.MatchStarted{
		RoomID:       roomID,
		TournamentID: room.TournamentID,
		MatchNumber:  matchNumber,
		StateIDs:     ids,
	})
	s.logger.Info("match started", "tenant", scope.channel(), "room", roomID, "match", matchNumber, "participants", len(states))
	return states, nil
}

func (s *matchService) requireMatchFinished(ctx context.Context, scope Scope, room *models.Room) error {
	if room.CurrentMatch == 0 {
		return nil
	}
	states, err := scope.Repos.MatchStates.ListByRoomMatch(ctx, room.ID, room.CurrentMatch)
	if err != nil {
		return translateRepoError(err)
	}
	for _, st := range states {
		if st.IsActive {
			return fmt.Errorf("%w: match %d of room %s still has active participants", ErrInvalidTransition, room.CurrentMatch, room.ID)
		}
	}
	return nil
}

func (s *matchService) scoringFor(ctx context.Context, repos *repositories.Set, tournamentID string) (models.ScoringConfig, error) {
	cfg, err := repos.Scoring.GetForTournament(ctx, tournamentID)
	if errors.Is(err, repositories.ErrScoringNotFound) {
		return s.defaultScoring.Clone(), nil
	}
	if err != nil {
		return models.ScoringConfig{}, fmt.Errorf("loading scoring config of tournament %s: %w", tournamentID, err)
	}
	return cfg.Clone(), nil
}

func (s *matchService) GetState(ctx context.Context, scope Scope, stateID string) (*models.MatchState, error) {
	if err := requireReader(scope.Caller); err != nil {
		return nil, err
	}
	st, err := scope.Repos.MatchStates.GetByID(ctx, stateID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return st, nil
}

func (s *matchService) ListMatch(ctx context.Context, scope Scope, roomID string, matchNumber int) ([]*models.MatchState, error) {
	if err := requireReader(scope.Caller); err != nil {
		return nil, err
	}
	if _, err := scope.Repos.Rooms.GetByID(ctx, roomID); err != nil {
		return nil, translateRepoError(err)
	}
	states, err := scope.Repos.MatchStates.ListByRoomMatch(ctx, roomID, matchNumber)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return states, nil
}

// lockMatch takes the in-process lock of the room and match, then the store
// lock that other engine instances on the same tenant store contend for.
func (s *matchService) lockMatch(ctx context.Context, scope Scope, roomID string, matchNumber int) (func(), error) {
	unlock := s.locks.Lock(matchKey(scope.tenantID(), roomID, matchNumber))
	if scope.Repos.Locks == nil {
		return unlock, nil
	}
	release, err := scope.Repos.Locks.Lock(ctx, fmt.Sprintf("%s/%d", roomID, matchNumber))
	if err != nil {
		unlock()
		return nil, translateRepoError(err)
	}
	return func() {
		release()
		unlock()
	}, nil
}

// lockState loads the state, takes the lock of its room and match and loads
// it again so the caller works on the latest version.
func (s *matchService) lockState(ctx context.Context, scope Scope, stateID string) (*models.MatchState, func(), error) {
	st, err := scope.Repos.MatchStates.GetByID(ctx, stateID)
	if err != nil {
		return nil, nil, translateRepoError(err)
	}
	if err := requireParticipant(scope.Caller, st); err != nil {
		return nil, nil, err
	}
	unlock, err := s.lockMatch(ctx, scope, st.RoomID, st.MatchNumber)
	if err != nil {
		return nil, nil, err
	}
	st, err = scope.Repos.MatchStates.GetByID(ctx, stateID)
	if err != nil {
		unlock()
		return nil, nil, translateRepoError(err)
	}
	return st, unlock, nil
}

func (s *matchService) save(ctx context.Context, scope Scope, st *models.MatchState) error {
	err := scope.Repos.MatchStates.Update(ctx, st)
	if errors.Is(err, repositories.ErrVersionConflict) {
		staleWritesTotal.Inc()
	}
	return translateRepoError(err)
}

func (s *matchService) RecordKill(ctx context.Context, scope Scope, stateID, playerID string, kills int) (*models.MatchState, error) {
	if kills < 0 {
		return nil, fmt.Errorf("%w: kills must not be negative", ErrValidationFailed)
	}
	st, unlock, err := s.lockState(ctx, scope, stateID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if st.Phase() != models.PhaseActive {
		return nil, fmt.Errorf("%w: cannot record kills on a %s state", ErrInvalidTransition, st.Phase())
	}
	idx := st.PlayerIndex(playerID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: player %s is not part of state %s", ErrNotFound, playerID, stateID)
	}
	if st.Players[idx].IsEliminated {
		return nil, fmt.Errorf("%w: player %s is eliminated", ErrInvalidTransition, playerID)
	}

	st.Players[idx].Kills = kills
	scoring.Apply(st)
	if err := s.save(ctx, scope, st); err != nil {
		return nil, err
	}
	transitionsTotal.WithLabelValues("kill").Inc()

	player := st.Players[idx]
	s.publish(ctx, scope, realtime.EventKillUpdate, realtime.KillUpdate{
		StateID:         st.ID,
		PlayerID:        player.PlayerID,
		Kills:           player.Kills,
		KillPoints:      player.KillPoints,
		PlacementPoints: player.PlacementPoints,
		TotalKills:      st.TotalKills,
		Points:          st.Points,
	})
	return st, nil
}

func (s *matchService) ToggleElimination(ctx context.Context, scope Scope, stateID, playerID string, eliminated bool) (*models.MatchState, error) {
	st, unlock, err := s.lockState(ctx, scope, stateID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if st.Phase() != models.PhaseActive {
		return nil, fmt.Errorf("%w: cannot change eliminations on a %s state", ErrInvalidTransition, st.Phase())
	}
	idx := st.PlayerIndex(playerID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: player %s is not part of state %s", ErrNotFound, playerID, stateID)
	}

	st.Players[idx].IsEliminated = eliminated
	if err := s.save(ctx, scope, st); err != nil {
		return nil, err
	}
	transitionsTotal.WithLabelValues("elimination").Inc()
	s.publish(ctx, scope, realtime.EventPlayerStatsUpdate, realtime.PlayerStatsUpdate{
		StateID:      st.ID,
		PlayerID:     playerID,
		IsEliminated: eliminated,
		Kills:        st.Players[idx].Kills,
	})

	if eliminated && st.AllEliminated() {
		return s.complete(ctx, scope, st, nil)
	}
	return st, nil
}

func (s *matchService) CompleteMatch(ctx context.Context, scope Scope, stateID string, placement *int) (*models.MatchState, error) {
	if placement != nil && *placement < 1 {
		return nil, fmt.Errorf("%w: placement must be at least 1", ErrValidationFailed)
	}
	st, unlock, err := s.lockState(ctx, scope, stateID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if st.Phase() != models.PhaseActive {
		return nil, fmt.Errorf("%w: cannot complete a %s state", ErrInvalidTransition, st.Phase())
	}
	return s.complete(ctx, scope, st, placement)
}

// complete finalizes st and crowns the last active participant. The caller
// holds the room and match lock.
func (s *matchService) complete(ctx context.Context, scope Scope, st *models.MatchState, explicit *int) (*models.MatchState, error) {
	if err := s.finalize(ctx, scope, st, explicit); err != nil {
		return nil, err
	}

	remaining, err := scope.Repos.MatchStates.ListByRoomMatch(ctx, st.RoomID, st.MatchNumber)
	if err != nil {
		s.logger.Error("auto-crown lookup failed", "tenant", scope.channel(), "room", st.RoomID, "match", st.MatchNumber, "error", err)
		return st, nil
	}
	var active []*models.MatchState
	for _, other := range remaining {
		if other.CountsAsActive() {
			active = append(active, other)
		}
	}
	if len(active) == 1 {
		winner := active[0]
		if err := s.finalize(ctx, scope, winner, intPtr(1)); err != nil {
			s.logger.Error("auto-crown failed", "tenant", scope.channel(), "state", winner.ID, "error", err)
			return st, nil
		}
		transitionsTotal.WithLabelValues("auto_crown").Inc()
		s.logger.Info("participant auto-crowned", "tenant", scope.channel(), "room", st.RoomID, "match", st.MatchNumber, "participant", winner.ParticipantID)
	}
	return st, nil
}

// finalize folds the completion of one state into the leaderboard and then
// writes the state. A completed state therefore always has its leaderboard
// contribution; the fold is undone when the state write fails.
func (s *matchService) finalize(ctx context.Context, scope Scope, st *models.MatchState, explicit *int) error {
	placement := 0
	if explicit != nil {
		placement = *explicit
	} else {
		active, err := scope.Repos.MatchStates.CountActive(ctx, st.RoomID, st.MatchNumber)
		if err != nil {
			return translateRepoError(err)
		}
		placement = scoring.PlacementFor(active)
	}

	done := st.Clone()
	done.Placement = intPtr(placement)
	done.IsActive = false
	done.IsCompleted = true
	scoring.Apply(done)

	applied := done.Clone()
	if _, err := s.leaderboards.ApplyMatch(ctx, scope.Repos, applied); err != nil {
		return fmt.Errorf("state %s not completed, leaderboard update failed: %w", st.ID, err)
	}
	if err := s.save(ctx, scope, done); err != nil {
		s.compensate(ctx, scope, "complete", applied, s.leaderboards.RevertMatch)
		return err
	}
	*st = *done
	transitionsTotal.WithLabelValues("complete").Inc()

	s.publish(ctx, scope, realtime.EventMatchComplete, realtime.MatchComplete{
		StateID:       st.ID,
		ParticipantID: st.ParticipantID,
		Placement:     placement,
		Points:        st.Points,
	})
	s.record(ctx, scope, "complete", st)
	return nil
}

func (s *matchService) Disqualify(ctx context.Context, scope Scope, stateID, reason string) (*models.MatchState, error) {
	reason = trimmed(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: disqualification reason is required", ErrValidationFailed)
	}
	st, unlock, err := s.lockState(ctx, scope, stateID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if st.Phase() != models.PhaseActive {
		return nil, fmt.Errorf("%w: cannot disqualify a %s state", ErrInvalidTransition, st.Phase())
	}

	st.IsDisqualified = true
	st.IsCompleted = true
	st.IsActive = false
	st.DisqualificationReason = &reason
	st.Placement = nil
	scoring.Apply(st)
	if err := s.save(ctx, scope, st); err != nil {
		return nil, err
	}
	transitionsTotal.WithLabelValues("disqualify").Inc()

	s.publish(ctx, scope, realtime.EventDisqualified, realtime.Disqualified{StateID: st.ID, Reason: reason})
	s.record(ctx, scope, "disqualify", st)
	return st, nil
}

func (s *matchService) RevokeDisqualification(ctx context.Context, scope Scope, stateID string) (*models.MatchState, error) {
	st, unlock, err := s.lockState(ctx, scope, stateID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	switch st.Phase() {
	case models.PhaseActive:
		return st, nil
	case models.PhaseCompleted:
		return nil, fmt.Errorf("%w: state %s is completed, not disqualified", ErrInvalidTransition, stateID)
	}

	st.IsDisqualified = false
	st.IsCompleted = false
	st.IsActive = true
	st.DisqualificationReason = nil
	st.Placement = nil
	scoring.Apply(st)
	if err := s.save(ctx, scope, st); err != nil {
		return nil, err
	}
	transitionsTotal.WithLabelValues("revoke").Inc()

	s.publish(ctx, scope, realtime.EventDisqualificationRevoked, realtime.DisqualificationRevoked{
		StateID:       st.ID,
		ParticipantID: st.ParticipantID,
	})
	s.record(ctx, scope, "revoke", st)
	return st, nil
}

func (s *matchService) RevertMatch(ctx context.Context, scope Scope, stateID string) (*models.MatchState, error) {
	if err := requireOrganizer(scope.Caller); err != nil {
		return nil, err
	}
	st, unlock, err := s.lockState(ctx, scope, stateID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if st.Phase() != models.PhaseCompleted {
		return nil, fmt.Errorf("%w: only completed states can be reverted, state is %s", ErrInvalidTransition, st.Phase())
	}

	// The leaderboard must see the values it was given at completion.
	reverted := st.Clone()
	if _, err := s.leaderboards.RevertMatch(ctx, scope.Repos, reverted); err != nil {
		return nil, err
	}

	st.Placement = nil
	st.IsCompleted = false
	st.IsActive = true
	st.Points = 0
	for i := range st.Players {
		st.Players[i].KillPoints = 0
		st.Players[i].PlacementPoints = 0
	}
	if err := s.save(ctx, scope, st); err != nil {
		s.compensate(ctx, scope, "revert", reverted, s.leaderboards.ApplyMatch)
		return nil, err
	}
	transitionsTotal.WithLabelValues("revert").Inc()

	s.publish(ctx, scope, realtime.EventMatchReverted, realtime.MatchReverted{
		StateID:       st.ID,
		ParticipantID: st.ParticipantID,
	})
	s.record(ctx, scope, "revert", st)
	return st, nil
}

func (s *matchService) FinishRoom(ctx context.Context, scope Scope, roomID string) (*models.Room, error) {
	if err := requireRoom(scope.Caller, roomID); err != nil {
		return nil, err
	}
	room, err := scope.Repos.Rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, translateRepoError(err)
	}

	unlock, err := s.lockMatch(ctx, scope, roomID, room.CurrentMatch)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !room.Status.CanAdvanceTo(models.RoomStatusCompleted) {
		return nil, fmt.Errorf("%w: room %s is %s", ErrInvalidTransition, roomID, room.Status)
	}
	if err := s.requireMatchFinished(ctx, scope, room); err != nil {
		return nil, err
	}
	if err := scope.Repos.Rooms.UpdateStatus(ctx, roomID, room.Status, models.RoomStatusCompleted, room.CurrentMatch); err != nil {
		return nil, translateRepoError(err)
	}
	room.Status = models.RoomStatusCompleted
	transitionsTotal.WithLabelValues("finish_room").Inc()
	return room, nil
}

// compensate undoes a leaderboard fold whose state write failed. It outlives
// the request so a disconnecting client cannot leave the board skewed.
func (s *matchService) compensate(
	ctx context.Context,
	scope Scope,
	operation string,
	snapshot *models.MatchState,
	undo func(context.Context, *repositories.Set, *models.MatchState) (*models.Leaderboard, error),
) {
	undoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	err := backoff.Retry(func() error {
		_, err := undo(undoCtx, scope.Repos, snapshot)
		return err
	}, retryBackOff(undoCtx, compensationAttempts))
	if err != nil {
		compensationFailures.WithLabelValues(operation).Inc()
		s.logger.Error("leaderboard left out of sync with match state",
			"tenant", scope.channel(), "operation", operation, "state", snapshot.ID,
			"participant", snapshot.ParticipantID, "error", err)
		return
	}
	s.logger.Warn("state write failed, leaderboard change undone",
		"tenant", scope.channel(), "operation", operation, "state", snapshot.ID)
}

// publish hands the event to the broadcaster after the write committed.
// Events of one tenant channel are delivered in the order they were
// published.
func (s *matchService) publish(ctx context.Context, scope Scope, eventType realtime.EventType, payload interface{}) {
	channel := scope.channel()
	s.effects.GoOrdered(ctx, "broadcast/"+channel, "broadcast", func(ctx context.Context) error {
		return s.broadcaster.Publish(ctx, channel, eventType, payload)
	})
}

func (s *matchService) record(ctx context.Context, scope Scope, action string, st *models.MatchState) {
	rec := storage.HistoryRecord{
		ID:     uuid.NewString(),
		Tenant: scope.channel(),
		Action: action,
		Actor:  scope.Caller.UserID,
		State:  st.Clone(),
		At:     s.now(),
	}
	s.effects.Go(ctx, "history", func(ctx context.Context) error {
		return s.history.Record(ctx, rec)
	})
}
