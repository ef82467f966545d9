package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-engine/models"
)

type postgresTenantRepository struct {
	db *sql.DB
}

func NewPostgresTenantRepository(db *sql.DB) TenantRepository {
	return &postgresTenantRepository{db: db}
}

func (r *postgresTenantRepository) Create(ctx context.Context, t *models.Tenant) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO tenants (id, slug, db_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.Slug, t.DBName, t.Status, t.CreatedAt)
	if err != nil {
		if uniqueViolation(err, "") {
			return ErrTenantConflict
		}
		return fmt.Errorf("failed to insert tenant %s: %w", t.Slug, err)
	}
	return nil
}

func (r *postgresTenantRepository) scanTenant(row rowScanner) (*models.Tenant, error) {
	var t models.Tenant
	if err := row.Scan(&t.ID, &t.Slug, &t.DBName, &t.Status, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *postgresTenantRepository) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	query := `SELECT id, slug, db_name, status, created_at FROM tenants WHERE slug = $1`
	return r.scanTenant(r.db.QueryRowContext(ctx, query, slug))
}

func (r *postgresTenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	query := `SELECT id, slug, db_name, status, created_at FROM tenants WHERE id = $1`
	return r.scanTenant(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresTenantRepository) UpdateStatus(ctx context.Context, id string, status models.TenantStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE tenants SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update status of tenant %s: %w", id, err)
	}
	return checkAffectedRows(result, ErrTenantNotFound)
}

func (r *postgresTenantRepository) List(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, slug, db_name, status, created_at FROM tenants ORDER BY slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]*models.Tenant, 0)
	for rows.Next() {
		t, err := r.scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tenants, nil
}
