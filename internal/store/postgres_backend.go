package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	snapshotRowID = 1

	selectSnapshotQuery = `SELECT data FROM snapshots WHERE id = $1`
	upsertSnapshotQuery = `INSERT INTO snapshots (id, data, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
)

// PostgresBackend keeps the snapshot in a single row of the snapshots table.
// The table is created by the embedded database migrations.
type PostgresBackend struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresBackend returns a backend using db.
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Load reads the snapshot row.
func (b *PostgresBackend) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, selectSnapshotQuery, snapshotRowID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	return data, nil
}

// Save upserts the snapshot row.
func (b *PostgresBackend) Save(ctx context.Context, data []byte) error {
	if _, err := b.db.ExecContext(ctx, upsertSnapshotQuery, snapshotRowID, data, b.now()); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	return nil
}

// HealthCheck pings the database.
func (b *PostgresBackend) HealthCheck(ctx context.Context) error {
	if b == nil || b.db == nil {
		return sql.ErrConnDone
	}
	return b.db.PingContext(ctx)
}
