package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/repositories"
	"github.com/Dosada05/tournament-engine/scoring"
	"github.com/google/uuid"
)

type CreateRoomInput struct {
	TournamentID string
	RoomNumber   int
	Mode         models.ParticipantMode
	Roster       []models.RosterEntry
}

type RoomService interface {
	CreateRoom(ctx context.Context, scope Scope, input CreateRoomInput) (*models.Room, error)
	GetRoom(ctx context.Context, scope Scope, roomID string) (*models.Room, error)
	// ResetRoom returns a room to PENDING. Match states are kept; the next
	// match must use a number above the room's current match.
	ResetRoom(ctx context.Context, scope Scope, roomID string) (*models.Room, error)
	GetScoring(ctx context.Context, scope Scope, tournamentID string) (models.ScoringConfig, error)
	// SetScoring affects matches started afterwards only.
	SetScoring(ctx context.Context, scope Scope, tournamentID string, cfg models.ScoringConfig) (models.ScoringConfig, error)
}

type roomService struct {
	defaultScoring models.ScoringConfig
	logger         *slog.Logger
}

func NewRoomService(defaultScoring models.ScoringConfig, logger *slog.Logger) RoomService {
	if logger == nil {
		logger = slog.Default()
	}
	return &roomService{defaultScoring: defaultScoring.Clone(), logger: logger}
}

func validateRoster(mode models.ParticipantMode, roster []models.RosterEntry) error {
	if len(roster) == 0 {
		return fmt.Errorf("%w: roster must not be empty", ErrValidationFailed)
	}
	participants := make(map[string]struct{}, len(roster))
	players := make(map[string]struct{})
	for _, entry := range roster {
		if trimmed(entry.ParticipantID) == "" {
			return fmt.Errorf("%w: roster entry without participant id", ErrValidationFailed)
		}
		if _, dup := participants[entry.ParticipantID]; dup {
			return fmt.Errorf("%w: participant %s listed twice", ErrValidationFailed, entry.ParticipantID)
		}
		participants[entry.ParticipantID] = struct{}{}

		switch {
		case len(entry.Players) == 0:
			return fmt.Errorf("%w: participant %s has no players", ErrValidationFailed, entry.ParticipantID)
		case mode == models.ModeSolo && len(entry.Players) != 1:
			return fmt.Errorf("%w: solo participant %s must have exactly one player", ErrValidationFailed, entry.ParticipantID)
		}
		for _, p := range entry.Players {
			if trimmed(p.PlayerID) == "" {
				return fmt.Errorf("%w: participant %s has a player without id", ErrValidationFailed, entry.ParticipantID)
			}
			if _, dup := players[p.PlayerID]; dup {
				return fmt.Errorf("%w: player %s appears in more than one roster entry", ErrValidationFailed, p.PlayerID)
			}
			players[p.PlayerID] = struct{}{}
		}
	}
	return nil
}

func (s *roomService) CreateRoom(ctx context.Context, scope Scope, input CreateRoomInput) (*models.Room, error) {
	if err := requireOrganizer(scope.Caller); err != nil {
		return nil, err
	}
	if trimmed(input.TournamentID) == "" || input.RoomNumber < 1 {
		return nil, fmt.Errorf("%w: tournament id and a positive room number are required", ErrValidationFailed)
	}
	if !models.IsValidMode(input.Mode) {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrValidationFailed, input.Mode)
	}
	if err := validateRoster(input.Mode, input.Roster); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	room := &models.Room{
		ID:           uuid.NewString(),
		TournamentID: input.TournamentID,
		RoomNumber:   input.RoomNumber,
		Mode:         input.Mode,
		Roster:       input.Roster,
		Status:       models.RoomStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := scope.Repos.Rooms.Create(ctx, room); err != nil {
		return nil, translateRepoError(err)
	}
	s.logger.Info("room created", "tenant", scope.channel(), "room", room.ID, "tournament", room.TournamentID, "number", room.RoomNumber)
	return room, nil
}

func (s *roomService) GetRoom(ctx context.Context, scope Scope, roomID string) (*models.Room, error) {
	if err := requireReader(scope.Caller); err != nil {
		return nil, err
	}
	room, err := scope.Repos.Rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return room, nil
}

func (s *roomService) ResetRoom(ctx context.Context, scope Scope, roomID string) (*models.Room, error) {
	if err := requireOrganizer(scope.Caller); err != nil {
		return nil, err
	}
	room, err := scope.Repos.Rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if room.Status == models.RoomStatusPending {
		return room, nil
	}
	if err := scope.Repos.Rooms.UpdateStatus(ctx, roomID, room.Status, models.RoomStatusPending, room.CurrentMatch); err != nil {
		return nil, translateRepoError(err)
	}
	s.logger.Info("room reset", "tenant", scope.channel(), "room", roomID, "from", room.Status)
	room.Status = models.RoomStatusPending
	return room, nil
}

func (s *roomService) GetScoring(ctx context.Context, scope Scope, tournamentID string) (models.ScoringConfig, error) {
	if err := requireReader(scope.Caller); err != nil {
		return models.ScoringConfig{}, err
	}
	cfg, err := scope.Repos.Scoring.GetForTournament(ctx, tournamentID)
	if errors.Is(err, repositories.ErrScoringNotFound) {
		return s.defaultScoring.Clone(), nil
	}
	if err != nil {
		return models.ScoringConfig{}, err
	}
	return *cfg, nil
}

func (s *roomService) SetScoring(ctx context.Context, scope Scope, tournamentID string, cfg models.ScoringConfig) (models.ScoringConfig, error) {
	if err := requireOrganizer(scope.Caller); err != nil {
		return models.ScoringConfig{}, err
	}
	if trimmed(tournamentID) == "" {
		return models.ScoringConfig{}, fmt.Errorf("%w: tournament id is required", ErrValidationFailed)
	}
	if len(cfg.PlacementPoints) == 0 {
		cfg.PlacementPoints = s.defaultScoring.Clone().PlacementPoints
	}
	if err := scoring.Validate(cfg); err != nil {
		return models.ScoringConfig{}, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if err := scope.Repos.Scoring.SetForTournament(ctx, tournamentID, cfg); err != nil {
		return models.ScoringConfig{}, err
	}
	return cfg, nil
}
