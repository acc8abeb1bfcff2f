package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/practicum-hub/practicum/internal/registration"
)

var _ registration.Storage = (*Postgres)(nil)

// Querier is the subset of pgxpool.Pool used by Postgres.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS registration_drafts (
	key        TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ
)`

// Postgres stores drafts in the registration_drafts table.
type Postgres struct {
	db  Querier
	ttl time.Duration
	now func() time.Time
}

// NewPostgres constructs a PostgreSQL store. A zero ttl keeps drafts until cleared.
func NewPostgres(db Querier, ttl time.Duration) *Postgres {
	return &Postgres{db: db, ttl: ttl, now: time.Now}
}

// EnsureSchema creates the drafts table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("storage: ensure schema: %w", err)
	}
	return nil
}

// Get returns the payload stored under key unless it has expired.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT payload FROM registration_drafts
WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`
	var payload []byte
	if err := p.db.QueryRow(ctx, query, key, p.now()).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, registration.ErrStorageMiss
		}
		return nil, fmt.Errorf("storage: select draft: %w", err)
	}
	return payload, nil
}

// Set upserts the payload for key.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	const query = `INSERT INTO registration_drafts (key, payload, updated_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE
SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`
	now := p.now()
	var expires *time.Time
	if p.ttl > 0 {
		at := now.Add(p.ttl)
		expires = &at
	}
	if _, err := p.db.Exec(ctx, query, key, value, now, expires); err != nil {
		return fmt.Errorf("storage: upsert draft: %w", err)
	}
	return nil
}

// Delete removes the row for key.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM registration_drafts WHERE key = $1`
	if _, err := p.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("storage: delete draft: %w", err)
	}
	return nil
}

// Exists reports whether an unexpired row exists for key.
func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM registration_drafts
WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2))`
	var ok bool
	if err := p.db.QueryRow(ctx, query, key, p.now()).Scan(&ok); err != nil {
		return false, fmt.Errorf("storage: probe draft: %w", err)
	}
	return ok, nil
}
