package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound indicates no user row matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// User is a persisted social login user.
type User struct {
	ID          uuid.UUID
	Provider    string
	Subject     string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// UserStore persists social login users.
//
// UserStore is safe for concurrent use by multiple goroutines.
type UserStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewUserStore creates a user store.
func NewUserStore(pool *pgxpool.Pool, logger *slog.Logger) (*UserStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStore{pool: pool, logger: logger}, nil
}

// Upsert records a login for the identity: first login inserts the row,
// later logins refresh the profile fields and last_login_at.
func (s *UserStore) Upsert(ctx context.Context, id Identity) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (provider, subject, email, display_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (provider, subject) DO UPDATE
		 SET email = EXCLUDED.email,
		     display_name = EXCLUDED.display_name,
		     last_login_at = now()
		 RETURNING id, provider, subject, email, display_name, created_at, last_login_at`,
		id.Provider, id.Subject, id.Email, id.DisplayName,
	).Scan(&u.ID, &u.Provider, &u.Subject, &u.Email, &u.DisplayName, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		return User{}, fmt.Errorf("upserting user: %w", err)
	}
	return u, nil
}

// ByID returns one user.
func (s *UserStore) ByID(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, provider, subject, email, display_name, created_at, last_login_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Provider, &u.Subject, &u.Email, &u.DisplayName, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("querying user %s: %w", id, err)
	}
	return u, nil
}
