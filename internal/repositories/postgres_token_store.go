package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	crdbpgxv5 "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"

	"github.com/vidsplit/client/internal/auth"
	"github.com/vidsplit/client/internal/db"
	"github.com/vidsplit/client/internal/models"
)

// DefaultProfile is the row used when no profile name is configured.
const DefaultProfile = "default"

const tokenSchema = `
CREATE TABLE IF NOT EXISTS client_tokens (
    profile       TEXT PRIMARY KEY,
    access_token  TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
)`

// PostgresTokenStore persists the token pair of one profile in PostgreSQL
// (or CockroachDB), so several machines can share a login.
type PostgresTokenStore struct {
	pool    db.Pool
	profile string
}

// NewPostgresTokenStore constructs a token store backed by PostgreSQL.
func NewPostgresTokenStore(pool db.Pool, profile string) *PostgresTokenStore {
	if profile == "" {
		profile = DefaultProfile
	}
	return &PostgresTokenStore{pool: pool, profile: profile}
}

// EnsureSchema creates the token table when missing.
func (s *PostgresTokenStore) EnsureSchema(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, tokenSchema); err != nil {
		return fmt.Errorf("create token table: %w", err)
	}
	return nil
}

// Load returns the stored pair, or an empty pair when the profile has none.
func (s *PostgresTokenStore) Load(ctx context.Context) (models.TokenPair, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT access_token, refresh_token
        FROM client_tokens
        WHERE profile = $1
    `, s.profile)

	var pair models.TokenPair
	if err := row.Scan(&pair.AccessToken, &pair.RefreshToken); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TokenPair{}, nil
		}
		return models.TokenPair{}, fmt.Errorf("select tokens: %w", err)
	}
	return pair, nil
}

// Save replaces the stored pair in a single retried transaction.
func (s *PostgresTokenStore) Save(ctx context.Context, pair models.TokenPair) error {
	err := crdbpgxv5.ExecuteTx(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO client_tokens (profile, access_token, refresh_token, updated_at)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (profile)
            DO UPDATE SET access_token = EXCLUDED.access_token,
                          refresh_token = EXCLUDED.refresh_token,
                          updated_at = EXCLUDED.updated_at
        `, s.profile, pair.AccessToken, pair.RefreshToken, time.Now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert tokens: %w", err)
	}
	return nil
}

// Clear deletes the profile's row. Clearing an absent row is not an error.
func (s *PostgresTokenStore) Clear(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `DELETE FROM client_tokens WHERE profile = $1`, s.profile); err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}
	return nil
}

var _ auth.TokenStore = (*PostgresTokenStore)(nil)
