// Package throttle decides whether an IP is temporarily blocked from logging
// in based on its recent failed attempts.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/authgate/internal/services/auth/attempt"
)

// Config tunes the failed-login gate.
type Config struct {
	AccountThreshold  int `env:"AUTHGATE_FAILED_LOGIN_ACCOUNT_THRESHOLD" envDefault:"5"`
	AttemptThreshold  int `env:"AUTHGATE_FAILED_LOGIN_ATTEMPT_THRESHOLD" envDefault:"10"`
	ThrottlingMinutes int `env:"AUTHGATE_FAILED_LOGIN_THROTTLING_MINUTES" envDefault:"5"`
	DaysToCheck       int `env:"AUTHGATE_FAILED_LOGIN_DAYS_TO_CHECK" envDefault:"1"`
}

// Validate rejects negative settings.
func (c Config) Validate() error {
	switch {
	case c.AccountThreshold < 0:
		return errors.New("account threshold must not be negative")
	case c.AttemptThreshold < 0:
		return errors.New("attempt threshold must not be negative")
	case c.ThrottlingMinutes < 0:
		return errors.New("throttling minutes must not be negative")
	case c.DaysToCheck < 0:
		return errors.New("days to check must not be negative")
	}
	return nil
}

// Window returns how far back failed attempts are aggregated.
func (c Config) Window() time.Duration {
	return time.Duration(c.DaysToCheck) * 24 * time.Hour
}

// Cooldown returns how long a breaching IP must stay quiet to be let back in.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.ThrottlingMinutes) * time.Minute
}

// Policy evaluates the gate against an attempt ledger.
type Policy struct {
	cfg    Config
	ledger attempt.Ledger
}

// NewPolicy builds a policy. The ledger is required.
func NewPolicy(cfg Config, ledger attempt.Ledger) (*Policy, error) {
	if ledger == nil {
		return nil, errors.New("attempt ledger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate throttle config: %w", err)
	}
	return &Policy{cfg: cfg, ledger: ledger}, nil
}

// ShouldThrottle reports whether logins from ip are blocked at now.
//
// An IP breaches when either the distinct accounts it failed against or its
// total failures exceed their thresholds. A breaching IP is only blocked
// while its latest failure is within the cooldown.
func (p *Policy) ShouldThrottle(ctx context.Context, ip string, now time.Time) (bool, error) {
	snapshot, err := p.ledger.FailedAttemptsSince(ctx, ip, now.Add(-p.cfg.Window()))
	if err != nil {
		return false, fmt.Errorf("aggregate failed attempts: %w", err)
	}
	return Evaluate(p.cfg, snapshot, now), nil
}

// Evaluate applies the gate to an already aggregated snapshot.
func Evaluate(cfg Config, snapshot attempt.Snapshot, now time.Time) bool {
	if snapshot.TotalFailedAttempts == 0 || snapshot.LastAttemptAt.IsZero() {
		return false
	}
	breached := snapshot.DistinctAccountsAffected > cfg.AccountThreshold ||
		snapshot.TotalFailedAttempts > cfg.AttemptThreshold
	if !breached {
		return false
	}
	return snapshot.LastAttemptAt.After(now.Add(-cfg.Cooldown()))
}
