package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/authgate/internal/services/auth/attempt"
)

// Record appends one login attempt. The insert autocommits.
func (s *Store) Record(ctx context.Context, a attempt.Attempt) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(a.IP) == "" {
		return fmt.Errorf("attempt ip is required")
	}
	identifier := ""
	if a.UserID == "" {
		identifier = attempt.TruncateIdentifier(a.Identifier)
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO login_attempts (attempted_at, ip, user_id, identifier, success)
VALUES (?, ?, ?, ?, ?)`,
		toMillis(a.AttemptedAt),
		a.IP,
		toNullString(a.UserID),
		toNullString(identifier),
		a.Success,
	); err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

// FailedAttemptsSince aggregates failures from ip in a single query.
func (s *Store) FailedAttemptsSince(ctx context.Context, ip string, since time.Time) (attempt.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return attempt.Snapshot{}, err
	}
	var (
		snapshot attempt.Snapshot
		first    sql.NullInt64
		last     sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(DISTINCT user_id), MIN(attempted_at), MAX(attempted_at)
FROM login_attempts
WHERE ip = ? AND success = 0 AND attempted_at >= ?`,
		ip, toMillis(since),
	).Scan(&snapshot.TotalFailedAttempts, &snapshot.DistinctAccountsAffected, &first, &last)
	if err != nil {
		return attempt.Snapshot{}, fmt.Errorf("aggregate failed attempts: %w", err)
	}
	if first.Valid {
		snapshot.FirstAttemptAt = fromMillis(first.Int64)
	}
	if last.Valid {
		snapshot.LastAttemptAt = fromMillis(last.Int64)
	}
	return snapshot, nil
}

// LastSuccessfulLogin returns the newest successful attempt for userID
// before before.
func (s *Store) LastSuccessfulLogin(ctx context.Context, userID string, before time.Time) (time.Time, bool, error) {
	if err := s.ready(ctx); err != nil {
		return time.Time{}, false, err
	}
	var last sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT MAX(attempted_at)
FROM login_attempts
WHERE user_id = ? AND success = 1 AND attempted_at < ?`,
		userID, toMillis(before),
	).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, fmt.Errorf("last successful login: %w", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(last.Int64), true, nil
}
