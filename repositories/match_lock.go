package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"
)

const lockReleaseTimeout = 5 * time.Second

type postgresMatchLocker struct {
	db *sql.DB
}

// NewPostgresMatchLocker locks keys with session advisory locks. Each held
// key pins one pooled connection until it is released.
func NewPostgresMatchLocker(db *sql.DB) MatchLocker {
	return &postgresMatchLocker{db: db}
}

func (l *postgresMatchLocker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve connection for lock %s: %w", key, err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMatchLockTimeout, key, ctx.Err())
		}
		return nil, fmt.Errorf("failed to take advisory lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
			defer cancel()
			if _, err := conn.ExecContext(releaseCtx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
				// A session still holding the lock must not return to the pool.
				_ = conn.Raw(func(interface{}) error { return driver.ErrBadConn })
			}
			_ = conn.Close()
		})
	}, nil
}
