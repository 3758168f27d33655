// Package attempt defines the append-only login attempt ledger.
package attempt

import (
	"context"
	"time"
	"unicode/utf8"
)

// MaxIdentifierLength bounds the identifier stored for unresolved accounts.
const MaxIdentifierLength = 100

// Attempt is one login try from an IP.
type Attempt struct {
	ID          int64
	AttemptedAt time.Time
	IP          string
	// UserID is empty when the identifier did not resolve to an account.
	UserID string
	// Identifier is only kept when UserID is empty.
	Identifier string
	Success    bool
}

// Snapshot aggregates failed attempts from one IP over a window.
type Snapshot struct {
	TotalFailedAttempts      int
	DistinctAccountsAffected int
	FirstAttemptAt           time.Time
	LastAttemptAt            time.Time
}

// Ledger records attempts and answers throttling queries.
type Ledger interface {
	// Record appends exactly one attempt.
	Record(ctx context.Context, a Attempt) error
	// FailedAttemptsSince aggregates failures from ip at or after since.
	// Attempts without a user id count toward the total only.
	FailedAttemptsSince(ctx context.Context, ip string, since time.Time) (Snapshot, error)
	// LastSuccessfulLogin returns the newest successful attempt for userID
	// strictly before before.
	LastSuccessfulLogin(ctx context.Context, userID string, before time.Time) (time.Time, bool, error)
}

// Failed builds a failed attempt, keeping the identifier only when no user
// id is known.
func Failed(ip, userID, identifier string, at time.Time) Attempt {
	a := Attempt{AttemptedAt: at, IP: ip, UserID: userID}
	if userID == "" {
		a.Identifier = TruncateIdentifier(identifier)
	}
	return a
}

// Succeeded builds a successful attempt for userID.
func Succeeded(ip, userID string, at time.Time) Attempt {
	return Attempt{AttemptedAt: at, IP: ip, UserID: userID, Success: true}
}

// TruncateIdentifier cuts identifier to MaxIdentifierLength characters.
func TruncateIdentifier(identifier string) string {
	if utf8.RuneCountInString(identifier) <= MaxIdentifierLength {
		return identifier
	}
	runes := []rune(identifier)
	return string(runes[:MaxIdentifierLength])
}
