package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/authgate/internal/services/auth/storage"
)

// PutOwnershipLink upserts the link for (UserID, Provider).
func (s *Store) PutOwnershipLink(ctx context.Context, link storage.OwnershipLink) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(link.UserID) == "" || strings.TrimSpace(link.Provider) == "" {
		return fmt.Errorf("user id and provider are required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO ownership_links (user_id, provider, external_id, ownership, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id, provider) DO UPDATE SET
    external_id = excluded.external_id,
    ownership = excluded.ownership`,
		link.UserID,
		link.Provider,
		link.ExternalID,
		link.Ownership,
		toMillis(link.CreatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("put ownership link: %w", err)
	}
	return nil
}

// HasOwnership reports whether any link for userID confirms ownership.
func (s *Store) HasOwnership(ctx context.Context, userID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	var owned bool
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ownership_links WHERE user_id = ? AND ownership = 1)`,
		userID,
	).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("check ownership: %w", err)
	}
	return owned, nil
}
