package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/authgate/internal/services/auth/storage"
	"github.com/louisbranch/authgate/internal/services/auth/user"
)

const userColumns = `id, username, email, password_hash, registration_ip, steam_id, terms_version, created_at, updated_at`

// PutUser inserts a new user. Username and email must be unused.
func (s *Store) PutUser(ctx context.Context, u user.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(u.Username) == "" || strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("username and email are required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Username,
		u.Email,
		u.PasswordHash,
		u.RegistrationIP,
		u.SteamID,
		u.TermsVersion,
		toMillis(u.CreatedAt),
		toMillis(u.UpdatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrUserExists
		}
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser fetches a user record by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	if err := s.ready(ctx); err != nil {
		return user.User{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return user.User{}, fmt.Errorf("user id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	return scanUser(row)
}

// GetUserByIdentifier fetches a user whose username or email equals
// identifier. Callers pass the canonical form.
func (s *Store) GetUserByIdentifier(ctx context.Context, identifier string) (user.User, error) {
	if err := s.ready(ctx); err != nil {
		return user.User{}, err
	}
	if identifier == "" {
		return user.User{}, storage.ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?1 OR email = ?1 ORDER BY created_at LIMIT 1`,
		identifier,
	)
	return scanUser(row)
}

// UpdatePasswordHash replaces a user's password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID string, hash string, updatedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(hash) == "" {
		return fmt.Errorf("password hash is required")
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, toMillis(updatedAt), userID,
	)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return requireAffected(result)
}

func scanUser(row *sql.Row) (user.User, error) {
	var (
		u         user.User
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.RegistrationIP,
		&u.SteamID,
		&u.TermsVersion,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
