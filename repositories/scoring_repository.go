package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-engine/models"
)

type postgresScoringRepository struct {
	db *sql.DB
}

func NewPostgresScoringRepository(db *sql.DB) ScoringRepository {
	return &postgresScoringRepository{db: db}
}

func (r *postgresScoringRepository) GetForTournament(ctx context.Context, tournamentID string) (*models.ScoringConfig, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT config FROM scoring_configs WHERE tournament_id = $1`, tournamentID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScoringNotFound
		}
		return nil, fmt.Errorf("failed to load scoring config of tournament %s: %w", tournamentID, err)
	}
	var cfg models.ScoringConfig
	if err := decodeJSONColumn(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode scoring config of tournament %s: %w", tournamentID, err)
	}
	return &cfg, nil
}

func (r *postgresScoringRepository) SetForTournament(ctx context.Context, tournamentID string, cfg models.ScoringConfig) error {
	doc, err := jsonParam(cfg)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO scoring_configs (tournament_id, config, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tournament_id) DO UPDATE SET config = EXCLUDED.config, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, tournamentID, doc, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store scoring config of tournament %s: %w", tournamentID, err)
	}
	return nil
}
