package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/authgate/internal/services/auth/ban"
	"github.com/louisbranch/authgate/internal/services/auth/storage"
)

const banColumns = `id, user_id, level, reason, created_at, expires_at, revoked_at`

// PutBan inserts b and returns it with its storage-assigned id.
func (s *Store) PutBan(ctx context.Context, b ban.Ban) (ban.Ban, error) {
	if err := s.ready(ctx); err != nil {
		return ban.Ban{}, err
	}
	if strings.TrimSpace(b.UserID) == "" {
		return ban.Ban{}, fmt.Errorf("user id is required")
	}
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO bans (user_id, level, reason, created_at, expires_at, revoked_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		b.UserID,
		string(b.Level),
		b.Reason,
		toMillis(b.CreatedAt),
		toNullMillis(b.ExpiresAt),
		toNullMillis(b.RevokedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ban.Ban{}, storage.ErrNotFound
		}
		return ban.Ban{}, fmt.Errorf("put ban: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return ban.Ban{}, fmt.Errorf("ban id: %w", err)
	}
	b.ID = id
	return b, nil
}

// GetBan fetches a ban by id.
func (s *Store) GetBan(ctx context.Context, banID int64) (ban.Ban, error) {
	if err := s.ready(ctx); err != nil {
		return ban.Ban{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+banColumns+` FROM bans WHERE id = ?`, banID)
	b, err := scanBan(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ban.Ban{}, storage.ErrNotFound
	}
	return b, err
}

// RevokeBan sets revoked_at once. Revoking a revoked ban fails with
// ban.ErrAlreadyRevoked.
func (s *Store) RevokeBan(ctx context.Context, banID int64, revokedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE bans SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		toMillis(revokedAt), banID,
	)
	if err != nil {
		return fmt.Errorf("revoke ban: %w", err)
	}
	if err := requireAffected(result); err != nil {
		if _, getErr := s.GetBan(ctx, banID); getErr == nil {
			return ban.ErrAlreadyRevoked
		}
		return err
	}
	return nil
}

// ListBans returns every ban for userID ordered by id.
func (s *Store) ListBans(ctx context.Context, userID string) ([]ban.Ban, error) {
	return s.listBans(ctx, `SELECT `+banColumns+` FROM bans WHERE user_id = ? ORDER BY id`, userID)
}

// ListGlobalBans returns the GLOBAL bans for userID ordered by id.
func (s *Store) ListGlobalBans(ctx context.Context, userID string) ([]ban.Ban, error) {
	return s.listBans(ctx, `SELECT `+banColumns+` FROM bans WHERE user_id = ? AND level = ? ORDER BY id`, userID, string(ban.LevelGlobal))
}

func (s *Store) listBans(ctx context.Context, query string, args ...any) ([]ban.Ban, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bans: %w", err)
	}
	defer rows.Close()

	var bans []ban.Ban
	for rows.Next() {
		b, err := scanBan(rows.Scan)
		if err != nil {
			return nil, err
		}
		bans = append(bans, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bans: %w", err)
	}
	return bans, nil
}

func scanBan(scan func(dest ...any) error) (ban.Ban, error) {
	var (
		b         ban.Ban
		level     string
		createdAt int64
		expiresAt sql.NullInt64
		revokedAt sql.NullInt64
	)
	if err := scan(&b.ID, &b.UserID, &level, &b.Reason, &createdAt, &expiresAt, &revokedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ban.Ban{}, err
		}
		return ban.Ban{}, fmt.Errorf("scan ban: %w", err)
	}
	b.Level = ban.Level(level)
	b.CreatedAt = fromMillis(createdAt)
	b.ExpiresAt = fromNullMillis(expiresAt)
	b.RevokedAt = fromNullMillis(revokedAt)
	return b, nil
}
