package viewstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the table used by PgStore.
const Schema = `
CREATE TABLE IF NOT EXISTS list_view_state (
	subject_id  TEXT        NOT NULL,
	state_key   TEXT        NOT NULL,
	params      JSONB       NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ,
	PRIMARY KEY (subject_id, state_key)
)`

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a store on pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureSchema creates the state table when it does not exist.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("viewstate: create schema: %w", err)
	}
	return nil
}

// Get reads the stored params, ignoring expired rows.
func (s *PgStore) Get(ctx context.Context, subject, listKey string) (url.Values, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT params
		FROM list_view_state
		WHERE subject_id = $1 AND state_key = $2
		  AND (expires_at IS NULL OR expires_at > now())`,
		subject, Key(listKey),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("viewstate: query %s: %w", Key(listKey), err)
	}
	var params url.Values
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("viewstate: decode %s: %w", Key(listKey), err)
	}
	return params, nil
}

// Set upserts params. A zero ttl never expires.
func (s *PgStore) Set(ctx context.Context, subject, listKey string, params url.Values, ttl time.Duration) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("viewstate: encode %s: %w", Key(listKey), err)
	}
	now := time.Now().UTC()
	var expires *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		expires = &t
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO list_view_state (subject_id, state_key, params, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject_id, state_key)
		DO UPDATE SET params = EXCLUDED.params,
		              updated_at = EXCLUDED.updated_at,
		              expires_at = EXCLUDED.expires_at`,
		subject, Key(listKey), data, now, expires,
	)
	if err != nil {
		return fmt.Errorf("viewstate: upsert %s: %w", Key(listKey), err)
	}
	return nil
}

// Delete removes the row.
func (s *PgStore) Delete(ctx context.Context, subject, listKey string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM list_view_state WHERE subject_id = $1 AND state_key = $2`,
		subject, Key(listKey),
	)
	if err != nil {
		return fmt.Errorf("viewstate: delete %s: %w", Key(listKey), err)
	}
	return nil
}

// Ping checks the pool.
func (s *PgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
