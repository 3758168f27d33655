// Package ban models account bans and decides which ban, if any, blocks a
// login.
package ban

import (
	"strings"
	"time"

	apperrors "github.com/louisbranch/authgate/internal/platform/errors"
)

// Level scopes what a ban restricts.
type Level string

const (
	// LevelGlobal blocks login entirely.
	LevelGlobal Level = "GLOBAL"
	// LevelChat restricts chat only.
	LevelChat Level = "CHAT"
	// LevelVault restricts vault access only.
	LevelVault Level = "VAULT"
)

var (
	ErrInvalidLevel   = apperrors.New(apperrors.CodeBanInvalidLevel, "ban level is invalid")
	ErrEmptyReason    = apperrors.New(apperrors.CodeBanEmptyReason, "ban reason is required")
	ErrInvalidExpiry  = apperrors.New(apperrors.CodeBanInvalidExpiry, "ban expiry must be after creation")
	ErrAlreadyRevoked = apperrors.New(apperrors.CodeBanAlreadyRevoked, "ban is already revoked")
)

// Ban is a restriction placed on a user.
type Ban struct {
	ID        int64
	UserID    string
	Level     Level
	Reason    string
	CreatedAt time.Time
	// ExpiresAt is nil for indefinite bans.
	ExpiresAt *time.Time
	// RevokedAt is set once and never cleared.
	RevokedAt *time.Time
}

// IsActive reports whether b is in force at now.
func (b Ban) IsActive(now time.Time) bool {
	if b.RevokedAt != nil {
		return false
	}
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// ParseLevel parses a level name case-insensitively.
func ParseLevel(raw string) (Level, error) {
	switch Level(strings.ToUpper(strings.TrimSpace(raw))) {
	case LevelGlobal:
		return LevelGlobal, nil
	case LevelChat:
		return LevelChat, nil
	case LevelVault:
		return LevelVault, nil
	default:
		return "", ErrInvalidLevel
	}
}

// New validates and builds a ban starting at now. A zero duration makes the
// ban indefinite.
func New(userID string, level Level, reason string, duration time.Duration, now time.Time) (Ban, error) {
	if _, err := ParseLevel(string(level)); err != nil {
		return Ban{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Ban{}, ErrEmptyReason
	}
	if duration < 0 {
		return Ban{}, ErrInvalidExpiry
	}
	created := now.UTC()
	b := Ban{
		UserID:    userID,
		Level:     level,
		Reason:    reason,
		CreatedAt: created,
	}
	if duration > 0 {
		expires := created.Add(duration)
		b.ExpiresAt = &expires
	}
	return b, nil
}

// Revoke marks b revoked at now.
func Revoke(b Ban, now time.Time) (Ban, error) {
	if b.RevokedAt != nil {
		return b, ErrAlreadyRevoked
	}
	revoked := now.UTC()
	b.RevokedAt = &revoked
	return b, nil
}

// ActiveGlobal returns the active global ban with the lowest id.
func ActiveGlobal(bans []Ban, now time.Time) (Ban, bool) {
	var (
		found Ban
		ok    bool
	)
	for _, b := range bans {
		if b.Level != LevelGlobal || !b.IsActive(now) {
			continue
		}
		if !ok || b.ID < found.ID {
			found, ok = b, true
		}
	}
	return found, ok
}

// MissedGlobal returns a global ban that started and expired since the
// user's previous successful login, so the user never saw it. Revoked bans
// are not reported. Among several, the lowest id wins.
func MissedGlobal(bans []Ban, lastLogin, now time.Time) (Ban, bool) {
	var (
		found Ban
		ok    bool
	)
	for _, b := range bans {
		if b.Level != LevelGlobal || b.RevokedAt != nil || b.ExpiresAt == nil {
			continue
		}
		if b.IsActive(now) || !b.CreatedAt.After(lastLogin) {
			continue
		}
		if !ok || b.ID < found.ID {
			found, ok = b, true
		}
	}
	return found, ok
}
