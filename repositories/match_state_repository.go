package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-engine/models"
)

const matchStateColumns = `
	id, participant_id, participant_name, room_id, tournament_id, match_number, roster_index, players,
	total_kills, placement, points, is_active, is_completed, is_disqualified,
	disqualification_reason, scoring, version, created_at, updated_at`

type postgresMatchStateRepository struct {
	db *sql.DB
}

func NewPostgresMatchStateRepository(db *sql.DB) MatchStateRepository {
	return &postgresMatchStateRepository{db: db}
}

func (r *postgresMatchStateRepository) CreateBatch(ctx context.Context, states []*models.MatchState) (err error) {
	if len(states) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("CreateBatch failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO match_states (`+matchStateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`)
	if err != nil {
		return fmt.Errorf("CreateBatch failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range states {
		players, encErr := jsonParam(s.Players)
		if encErr != nil {
			return fmt.Errorf("CreateBatch failed to encode players of %s: %w", s.ID, encErr)
		}
		scoringDoc, encErr := jsonParam(s.Scoring)
		if encErr != nil {
			return fmt.Errorf("CreateBatch failed to encode scoring of %s: %w", s.ID, encErr)
		}
		_, err = stmt.ExecContext(ctx,
			s.ID, s.ParticipantID, s.ParticipantName, s.RoomID, s.TournamentID, s.MatchNumber, s.RosterIndex, players,
			s.TotalKills, s.Placement, s.Points, s.IsActive, s.IsCompleted, s.IsDisqualified,
			s.DisqualificationReason, scoringDoc, s.Version, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			if uniqueViolation(err, "match_states_room_match_participant_key") {
				return ErrMatchStateConflict
			}
			return fmt.Errorf("CreateBatch failed for participant %s: %w", s.ParticipantID, err)
		}
	}
	return nil
}

func (r *postgresMatchStateRepository) scanMatchState(row rowScanner) (*models.MatchState, error) {
	var s models.MatchState
	var players, scoringDoc []byte
	err := row.Scan(
		&s.ID, &s.ParticipantID, &s.ParticipantName, &s.RoomID, &s.TournamentID, &s.MatchNumber, &s.RosterIndex, &players,
		&s.TotalKills, &s.Placement, &s.Points, &s.IsActive, &s.IsCompleted, &s.IsDisqualified,
		&s.DisqualificationReason, &scoringDoc, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchStateNotFound
		}
		return nil, err
	}
	if err := decodeJSONColumn(players, &s.Players); err != nil {
		return nil, fmt.Errorf("failed to decode players of %s: %w", s.ID, err)
	}
	if err := decodeJSONColumn(scoringDoc, &s.Scoring); err != nil {
		return nil, fmt.Errorf("failed to decode scoring of %s: %w", s.ID, err)
	}
	return &s, nil
}

func (r *postgresMatchStateRepository) GetByID(ctx context.Context, id string) (*models.MatchState, error) {
	query := `SELECT ` + matchStateColumns + ` FROM match_states WHERE id = $1`
	s, err := r.scanMatchState(r.db.QueryRowContext(ctx, query, id))
	if err != nil && !errors.Is(err, ErrMatchStateNotFound) {
		return nil, fmt.Errorf("failed to scan match state %s: %w", id, err)
	}
	return s, err
}

func (r *postgresMatchStateRepository) ListByRoomMatch(ctx context.Context, roomID string, matchNumber int) ([]*models.MatchState, error) {
	query := `SELECT ` + matchStateColumns + `
		FROM match_states
		WHERE room_id = $1 AND match_number = $2
		ORDER BY roster_index ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, roomID, matchNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query match states of room %s match %d: %w", roomID, matchNumber, err)
	}
	defer rows.Close()

	states := make([]*models.MatchState, 0)
	for rows.Next() {
		s, scanErr := r.scanMatchState(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match state row: %w", scanErr)
		}
		states = append(states, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match state rows iteration: %w", err)
	}
	return states, nil
}

func (r *postgresMatchStateRepository) CountActive(ctx context.Context, roomID string, matchNumber int) (int, error) {
	query := `
		SELECT COUNT(*) FROM match_states
		WHERE room_id = $1 AND match_number = $2 AND is_active AND NOT is_disqualified`
	var n int
	if err := r.db.QueryRowContext(ctx, query, roomID, matchNumber).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active states of room %s match %d: %w", roomID, matchNumber, err)
	}
	return n, nil
}

func (r *postgresMatchStateRepository) Update(ctx context.Context, s *models.MatchState) error {
	players, err := jsonParam(s.Players)
	if err != nil {
		return fmt.Errorf("failed to encode players of %s: %w", s.ID, err)
	}
	updatedAt := time.Now().UTC()

	query := `
		UPDATE match_states SET
			players = $1, total_kills = $2, placement = $3, points = $4,
			is_active = $5, is_completed = $6, is_disqualified = $7,
			disqualification_reason = $8, version = version + 1, updated_at = $9
		WHERE id = $10 AND version = $11`
	result, err := r.db.ExecContext(ctx, query,
		players, s.TotalKills, s.Placement, s.Points,
		s.IsActive, s.IsCompleted, s.IsDisqualified,
		s.DisqualificationReason, updatedAt,
		s.ID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update match state %s: %w", s.ID, err)
	}
	if err := checkAffectedRows(result, ErrVersionConflict); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			var exists bool
			if qErr := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM match_states WHERE id = $1)`, s.ID).Scan(&exists); qErr == nil && !exists {
				return ErrMatchStateNotFound
			}
		}
		return err
	}
	s.Version++
	s.UpdatedAt = updatedAt
	return nil
}
