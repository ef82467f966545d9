package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-engine/models"
)

type postgresRoomRepository struct {
	db *sql.DB
}

func NewPostgresRoomRepository(db *sql.DB) RoomRepository {
	return &postgresRoomRepository{db: db}
}

func (r *postgresRoomRepository) Create(ctx context.Context, room *models.Room) error {
	roster, err := jsonParam(room.Roster)
	if err != nil {
		return fmt.Errorf("failed to encode roster of room %s: %w", room.ID, err)
	}
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now

	query := `
		INSERT INTO rooms (id, tournament_id, room_number, mode, roster, status, current_match, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.ExecContext(ctx, query,
		room.ID, room.TournamentID, room.RoomNumber, room.Mode, roster,
		room.Status, room.CurrentMatch, room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, "rooms_tournament_room_number_key") {
			return ErrRoomConflict
		}
		return fmt.Errorf("failed to insert room %s: %w", room.ID, err)
	}
	return nil
}

func (r *postgresRoomRepository) GetByID(ctx context.Context, id string) (*models.Room, error) {
	query := `
		SELECT id, tournament_id, room_number, mode, roster, status, current_match, created_at, updated_at
		FROM rooms
		WHERE id = $1`

	var room models.Room
	var roster []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID, &room.TournamentID, &room.RoomNumber, &room.Mode, &roster,
		&room.Status, &room.CurrentMatch, &room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to scan room %s: %w", id, err)
	}
	if err := decodeJSONColumn(roster, &room.Roster); err != nil {
		return nil, fmt.Errorf("failed to decode roster of room %s: %w", id, err)
	}
	return &room, nil
}

func (r *postgresRoomRepository) UpdateStatus(ctx context.Context, id string, from, to models.RoomStatus, currentMatch int) error {
	query := `
		UPDATE rooms SET status = $1, current_match = $2, updated_at = $3
		WHERE id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, to, currentMatch, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update status of room %s: %w", id, err)
	}
	if err := checkAffectedRows(result, ErrRoomStatusChanged); err != nil {
		if errors.Is(err, ErrRoomStatusChanged) {
			if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, ErrRoomNotFound) {
				return ErrRoomNotFound
			}
		}
		return err
	}
	return nil
}
