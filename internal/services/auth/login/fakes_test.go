package login

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/louisbranch/authgate/internal/services/auth/attempt"
	"github.com/louisbranch/authgate/internal/services/auth/ban"
	"github.com/louisbranch/authgate/internal/services/auth/storage"
	"github.com/louisbranch/authgate/internal/services/auth/user"
)

type fakeUsers struct {
	users map[string]user.User
	err   error
	calls []string
}

func (f *fakeUsers) GetUserByIdentifier(_ context.Context, identifier string) (user.User, error) {
	f.calls = append(f.calls, identifier)
	if f.err != nil {
		return user.User{}, f.err
	}
	for _, u := range f.users {
		if u.Username == identifier || u.Email == identifier {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

type fakeBans struct {
	bans map[string][]ban.Ban
	err  error
}

func (f *fakeBans) ListGlobalBans(_ context.Context, userID string) ([]ban.Ban, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []ban.Ban
	for _, b := range f.bans[userID] {
		if b.Level == ban.LevelGlobal {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeOwnership struct {
	owners map[string]bool
	err    error
}

func (f *fakeOwnership) HasOwnership(_ context.Context, userID string) (bool, error) {
	return f.owners[userID], f.err
}

type memoryLedger struct {
	mu        sync.Mutex
	rows      []attempt.Attempt
	recordErr error
}

func (l *memoryLedger) Record(_ context.Context, a attempt.Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return l.recordErr
	}
	a.ID = int64(len(l.rows) + 1)
	if a.UserID != "" {
		a.Identifier = ""
	} else {
		a.Identifier = attempt.TruncateIdentifier(a.Identifier)
	}
	l.rows = append(l.rows, a)
	return nil
}

func (l *memoryLedger) FailedAttemptsSince(_ context.Context, ip string, since time.Time) (attempt.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var snapshot attempt.Snapshot
	users := map[string]struct{}{}
	for _, row := range l.rows {
		if row.IP != ip || row.Success || row.AttemptedAt.Before(since) {
			continue
		}
		snapshot.TotalFailedAttempts++
		if row.UserID != "" {
			users[row.UserID] = struct{}{}
		}
		if snapshot.FirstAttemptAt.IsZero() || row.AttemptedAt.Before(snapshot.FirstAttemptAt) {
			snapshot.FirstAttemptAt = row.AttemptedAt
		}
		if row.AttemptedAt.After(snapshot.LastAttemptAt) {
			snapshot.LastAttemptAt = row.AttemptedAt
		}
	}
	snapshot.DistinctAccountsAffected = len(users)
	return snapshot, nil
}

func (l *memoryLedger) LastSuccessfulLogin(_ context.Context, userID string, before time.Time) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var (
		last  time.Time
		found bool
	)
	for _, row := range l.rows {
		if row.UserID == userID && row.Success && row.AttemptedAt.Before(before) && row.AttemptedAt.After(last) {
			last, found = row.AttemptedAt, true
		}
	}
	return last, found, nil
}

func (l *memoryLedger) snapshot() []attempt.Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]attempt.Attempt(nil), l.rows...)
}

// fakeHasher matches when encoded is "hash:" + raw and counts comparisons.
type fakeHasher struct {
	verifies int
	err      error
}

func (f *fakeHasher) Hash(raw string) (string, error) { return "hash:" + raw, nil }

func (f *fakeHasher) Verify(raw, encoded string) (bool, error) {
	f.verifies++
	if f.err != nil {
		return false, f.err
	}
	return encoded != "" && encoded == "hash:"+raw, nil
}

type stubThrottle struct {
	throttled bool
	err       error
}

func (s stubThrottle) ShouldThrottle(context.Context, string, time.Time) (bool, error) {
	return s.throttled, s.err
}

var errBoom = errors.New("boom")
