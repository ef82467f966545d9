package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-engine/models"
)

const leaderboardColumns = `
	tournament_id, participant_id, participant_name, total_kills, total_points, matches_played,
	wins, top3, top5, best_placement, highest_kills, recent_form, players, history, version, updated_at`

type postgresLeaderboardRepository struct {
	db *sql.DB
}

func NewPostgresLeaderboardRepository(db *sql.DB) LeaderboardRepository {
	return &postgresLeaderboardRepository{db: db}
}

func (r *postgresLeaderboardRepository) scanLeaderboard(row rowScanner) (*models.Leaderboard, error) {
	var b models.Leaderboard
	var recentForm, players, history []byte
	err := row.Scan(
		&b.TournamentID, &b.ParticipantID, &b.ParticipantName, &b.TotalKills, &b.TotalPoints, &b.MatchesPlayed,
		&b.Wins, &b.Top3, &b.Top5, &b.BestPlacement, &b.HighestKills, &recentForm, &players, &history,
		&b.Version, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLeaderboardNotFound
		}
		return nil, err
	}
	b.ID = models.LeaderboardID(b.TournamentID, b.ParticipantID)
	if err := decodeJSONColumn(recentForm, &b.RecentForm); err != nil {
		return nil, fmt.Errorf("failed to decode recent form of %s: %w", b.ID, err)
	}
	if err := decodeJSONColumn(players, &b.Players); err != nil {
		return nil, fmt.Errorf("failed to decode players of %s: %w", b.ID, err)
	}
	if err := decodeJSONColumn(history, &b.History); err != nil {
		return nil, fmt.Errorf("failed to decode history of %s: %w", b.ID, err)
	}
	return &b, nil
}

func (r *postgresLeaderboardRepository) Get(ctx context.Context, tournamentID, participantID string) (*models.Leaderboard, error) {
	query := `SELECT ` + leaderboardColumns + ` FROM leaderboards WHERE tournament_id = $1 AND participant_id = $2`
	return r.scanLeaderboard(r.db.QueryRowContext(ctx, query, tournamentID, participantID))
}

func (r *postgresLeaderboardRepository) Save(ctx context.Context, b *models.Leaderboard) error {
	recentForm, err := jsonParam(b.RecentForm)
	if err != nil {
		return err
	}
	players, err := jsonParam(b.Players)
	if err != nil {
		return err
	}
	history, err := jsonParam(b.History)
	if err != nil {
		return err
	}
	updatedAt := time.Now().UTC()

	if b.Version == 0 {
		query := `
			INSERT INTO leaderboards (` + leaderboardColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15)
			ON CONFLICT (tournament_id, participant_id) DO NOTHING`
		result, err := r.db.ExecContext(ctx, query,
			b.TournamentID, b.ParticipantID, b.ParticipantName, b.TotalKills, b.TotalPoints, b.MatchesPlayed,
			b.Wins, b.Top3, b.Top5, b.BestPlacement, b.HighestKills, recentForm, players, history, updatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert leaderboard %s/%s: %w", b.TournamentID, b.ParticipantID, err)
		}
		if err := checkAffectedRows(result, ErrVersionConflict); err != nil {
			return err
		}
	} else {
		query := `
			UPDATE leaderboards SET
				participant_name = $1, total_kills = $2, total_points = $3, matches_played = $4,
				wins = $5, top3 = $6, top5 = $7, best_placement = $8, highest_kills = $9,
				recent_form = $10, players = $11, history = $12, version = version + 1, updated_at = $13
			WHERE tournament_id = $14 AND participant_id = $15 AND version = $16`
		result, err := r.db.ExecContext(ctx, query,
			b.ParticipantName, b.TotalKills, b.TotalPoints, b.MatchesPlayed,
			b.Wins, b.Top3, b.Top5, b.BestPlacement, b.HighestKills,
			recentForm, players, history, updatedAt,
			b.TournamentID, b.ParticipantID, b.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update leaderboard %s/%s: %w", b.TournamentID, b.ParticipantID, err)
		}
		if err := checkAffectedRows(result, ErrVersionConflict); err != nil {
			return err
		}
	}
	b.ID = models.LeaderboardID(b.TournamentID, b.ParticipantID)
	b.Version++
	b.UpdatedAt = updatedAt
	return nil
}

func (r *postgresLeaderboardRepository) ListByTournament(ctx context.Context, tournamentID string) ([]*models.Leaderboard, error) {
	query := `SELECT ` + leaderboardColumns + `
		FROM leaderboards
		WHERE tournament_id = $1
		ORDER BY total_points DESC, total_kills DESC, wins DESC, participant_id ASC`
	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboards of tournament %s: %w", tournamentID, err)
	}
	defer rows.Close()

	boards := make([]*models.Leaderboard, 0)
	for rows.Next() {
		b, scanErr := r.scanLeaderboard(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		boards = append(boards, b)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return boards, nil
}
