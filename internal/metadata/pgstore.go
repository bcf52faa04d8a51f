package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the table PgPreferenceStore reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS user_preferences (
	user_key   TEXT        NOT NULL,
	kind       TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	meta       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_key, kind, key)
)`

// PgPreferenceStore is a PostgreSQL-backed PreferenceStore using pgx/v5.
type PgPreferenceStore struct {
	pool *pgxpool.Pool
}

// NewPgPreferenceStore creates a store on pool.
func NewPgPreferenceStore(pool *pgxpool.Pool) *PgPreferenceStore {
	return &PgPreferenceStore{pool: pool}
}

// Migrate creates the preferences table if missing.
func (s *PgPreferenceStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create user_preferences: %w", err)
	}
	return nil
}

// Get implements PreferenceStore.
func (s *PgPreferenceStore) Get(ctx context.Context, userKey, kind, key string) (map[string]any, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT meta FROM user_preferences
		WHERE user_key = $1 AND kind = $2 AND key = $3`,
		userKey, kind, key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}

	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal preferences: %w", err)
	}
	return meta, nil
}

// Put implements PreferenceStore.
func (s *PgPreferenceStore) Put(ctx context.Context, userKey, kind, key string, meta map[string]any) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_preferences (user_key, kind, key, meta, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_key, kind, key)
		DO UPDATE SET meta = EXCLUDED.meta, updated_at = EXCLUDED.updated_at`,
		userKey, kind, key, raw,
	)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

// Delete implements PreferenceStore.
func (s *PgPreferenceStore) Delete(ctx context.Context, userKey, kind, key string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM user_preferences
		WHERE user_key = $1 AND kind = $2 AND key = $3`,
		userKey, kind, key,
	)
	if err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	return nil
}

// HealthCheck pings the database.
func (s *PgPreferenceStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
