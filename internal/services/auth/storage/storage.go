package storage

import (
	"context"
	"time"

	"github.com/louisbranch/authgate/internal/platform/errors"
	"github.com/louisbranch/authgate/internal/services/auth/ban"
	"github.com/louisbranch/authgate/internal/services/auth/user"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New(errors.CodeNotFound, "record not found")
	// ErrUserExists indicates a username or email collision.
	ErrUserExists = errors.New(errors.CodeUserAlreadyExists, "username or email is already taken")
)

// UserStore persists identity records.
type UserStore interface {
	PutUser(ctx context.Context, u user.User) error
	GetUser(ctx context.Context, userID string) (user.User, error)
	// GetUserByIdentifier matches a canonical username or email.
	GetUserByIdentifier(ctx context.Context, identifier string) (user.User, error)
	UpdatePasswordHash(ctx context.Context, userID string, hash string, updatedAt time.Time) error
}

// BanStore persists bans. Bans are never deleted; revocation is the only
// mutation.
type BanStore interface {
	// PutBan inserts b and returns it with its assigned id.
	PutBan(ctx context.Context, b ban.Ban) (ban.Ban, error)
	GetBan(ctx context.Context, banID int64) (ban.Ban, error)
	// RevokeBan sets the revocation time of an unrevoked ban.
	RevokeBan(ctx context.Context, banID int64, revokedAt time.Time) error
	ListBans(ctx context.Context, userID string) ([]ban.Ban, error)
	ListGlobalBans(ctx context.Context, userID string) ([]ban.Ban, error)
}

// OwnershipLink ties a user to an external platform account.
type OwnershipLink struct {
	UserID     string
	Provider   string
	ExternalID string
	// Ownership reports whether the external account owns the game.
	Ownership bool
	CreatedAt time.Time
}

// OwnershipStore persists external ownership links.
type OwnershipStore interface {
	// PutOwnershipLink upserts the link for (UserID, Provider).
	PutOwnershipLink(ctx context.Context, link OwnershipLink) error
	// HasOwnership reports whether any link for userID confirms ownership.
	HasOwnership(ctx context.Context, userID string) (bool, error)
}
