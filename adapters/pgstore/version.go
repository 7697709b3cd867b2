package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/socialgraph/core"
)

// VersionRegistry is a social.VersionRegistry over Postgres, an
// alternative to the Redis-backed one for deployments that prefer a
// single store.
type VersionRegistry struct {
	db *sql.DB
}

func (a *Adapter) NewVersionRegistry() *VersionRegistry {
	return &VersionRegistry{db: a.db}
}

func (v *VersionRegistry) Bump(ctx context.Context, owner social.UserID, stream social.VersionStream, at time.Time) error {
	q := `INSERT INTO version_rows (owner_id, stream, updated_at) VALUES ($1, $2, $3)
	      ON CONFLICT (owner_id, stream) DO UPDATE SET updated_at = $3 WHERE version_rows.updated_at < $3`
	_, err := v.db.ExecContext(ctx, q, owner, stream, at)
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	return nil
}

func (v *VersionRegistry) Get(ctx context.Context, owner social.UserID, stream social.VersionStream) (time.Time, error) {
	var t time.Time
	q := `SELECT updated_at FROM version_rows WHERE owner_id = $1 AND stream = $2`
	err := v.db.QueryRowContext(ctx, q, owner, stream).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get version: %w", err)
	}
	return t, nil
}
