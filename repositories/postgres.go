package repositories

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed catalog_schema.sql
var catalogSchema string

//go:embed tenant_schema.sql
var tenantSchema string

// ApplyCatalogSchema creates the tenant catalog tables if missing.
func ApplyCatalogSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, catalogSchema); err != nil {
		return fmt.Errorf("applying catalog schema: %w", err)
	}
	return nil
}

// ApplyTenantSchema creates the per-tenant tables if missing.
func ApplyTenantSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, tenantSchema); err != nil {
		return fmt.Errorf("applying tenant schema: %w", err)
	}
	return nil
}

// NewPostgresSet builds the repository registry over one tenant database.
func NewPostgresSet(db *sql.DB) *Set {
	return &Set{
		Rooms:        NewPostgresRoomRepository(db),
		MatchStates:  NewPostgresMatchStateRepository(db),
		Leaderboards: NewPostgresLeaderboardRepository(db),
		Scoring:      NewPostgresScoringRepository(db),
		Locks:        NewPostgresMatchLocker(db),
	}
}
