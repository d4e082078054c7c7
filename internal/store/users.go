package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, display_name, email, password_hash, created_at`

func scanUser(row rowScanner) (User, error) {
	var (
		user  User
		email sql.NullString
	)
	if err := row.Scan(&user.ID, &user.DisplayName, &email, &user.PasswordHash, &user.CreatedAt); err != nil {
		return User{}, err
	}
	user.Email = email.String
	return user, nil
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

// EnsureUserByName returns the password-less user with the given display
// name, creating it on first use.
func (s *Store) EnsureUserByName(ctx context.Context, name string) (User, error) {
	user, err := scanUser(s.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE display_name = ? AND email IS NULL`, name))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	user = User{ID: uuid.NewString(), DisplayName: name, CreatedAt: now()}
	if _, err := s.exec(ctx,
		`INSERT INTO users (id, display_name, created_at) VALUES (?, ?, ?)`,
		user.ID, user.DisplayName, user.CreatedAt); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *Store) CreateUser(ctx context.Context, user User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now()
	}
	_, err := s.exec(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.DisplayName, normalizeEmail(user.Email), user.PasswordHash, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.exec(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (token_hash) DO UPDATE SET user_id = excluded.user_id, expires_at = excluded.expires_at, revoked_at = NULL
	`, tokenHash, user.ID, expiresAt.UTC().Truncate(time.Second))
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *Store) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.exec(ctx, `UPDATE refresh_sessions SET revoked_at = ? WHERE token_hash = ?`, now(), tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *Store) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	user, err := scanUser(s.queryRow(ctx, `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = ?
			AND rs.revoked_at IS NULL
			AND rs.expires_at > ?
	`, tokenHash, now()))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	return user, nil
}

func (s *Store) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.exec(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES (?, ?)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp.UTC().Truncate(time.Second))
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *Store) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var count int
	err := s.queryRow(ctx, `SELECT COUNT(1) FROM revoked_access_tokens WHERE jti = ?`, jti).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return count > 0, nil
}

// normalizeEmail maps an empty address to NULL so the unique index ignores it.
func normalizeEmail(email string) any {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	return email
}

// now is truncated to whole seconds in UTC so timestamps compare correctly in
// both dialects.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
