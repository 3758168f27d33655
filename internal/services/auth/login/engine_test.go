package login

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/authgate/internal/services/auth/attempt"
	"github.com/louisbranch/authgate/internal/services/auth/ban"
	"github.com/louisbranch/authgate/internal/services/auth/throttle"
	"github.com/louisbranch/authgate/internal/services/auth/user"
)

var testNow = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	users     *fakeUsers
	bans      *fakeBans
	ownership *fakeOwnership
	ledger    *memoryLedger
	hasher    *fakeHasher
}

func newHarness() *harness {
	return &harness{
		users: &fakeUsers{users: map[string]user.User{
			"1": {ID: "1", Username: "alice", Email: "alice@example.com", PasswordHash: "hash:secret"},
			"2": {ID: "2", Username: "bob", Email: "bob@example.com", PasswordHash: "hash:secret"},
			"3": {ID: "3", Username: "carol", Email: "carol@example.com", PasswordHash: "hash:secret"},
		}},
		bans:      &fakeBans{bans: map[string][]ban.Ban{}},
		ownership: &fakeOwnership{owners: map[string]bool{}},
		ledger:    &memoryLedger{},
		hasher:    &fakeHasher{},
	}
}

func (h *harness) engine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	policy, err := throttle.NewPolicy(throttle.Config{
		AccountThreshold:  5,
		AttemptThreshold:  10,
		ThrottlingMinutes: 5,
		DaysToCheck:       1,
	}, h.ledger)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	engine, err := NewEngine(cfg, Deps{
		Users:     h.users,
		Bans:      h.bans,
		Ownership: h.ownership,
		Ledger:    h.ledger,
		Throttle:  policy,
		Hasher:    h.hasher,
		Clock:     func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func mustLogin(t *testing.T, engine *Engine, req Request) Outcome {
	t.Helper()
	outcome, err := engine.Login(context.Background(), req)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return outcome
}

func TestUnknownUserIsCredentialsMismatch(t *testing.T) {
	h := newHarness()
	engine := h.engine(t, Config{})

	outcome := mustLogin(t, engine, Request{Identifier: "ghost", Password: "x", IP: "1.2.3.4"})
	if _, ok := outcome.(CredentialsMismatch); !ok {
		t.Fatalf("outcome = %T, want CredentialsMismatch", outcome)
	}

	rows := h.ledger.snapshot()
	if len(rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rows))
	}
	if rows[0].UserID != "" || rows[0].Identifier != "ghost" || rows[0].Success || rows[0].IP != "1.2.3.4" {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
	if h.hasher.verifies != 1 {
		t.Fatalf("verifies = %d, want 1", h.hasher.verifies)
	}
}

func TestSuccessfulLogin(t *testing.T) {
	h := newHarness()
	engine := h.engine(t, Config{})

	outcome := mustLogin(t, engine, Request{Identifier: "Alice", Password: "secret", IP: "1.2.3.4"})
	got, ok := outcome.(SuccessfulLogin)
	if !ok {
		t.Fatalf("outcome = %T, want SuccessfulLogin", outcome)
	}
	if got.UserID != "1" || got.Username != "alice" {
		t.Fatalf("unexpected success: %+v", got)
	}

	rows := h.ledger.snapshot()
	if len(rows) != 1 || !rows[0].Success || rows[0].UserID != "1" {
		t.Fatalf("unexpected ledger rows: %+v", rows)
	}
	if h.users.calls[0] != "alice" {
		t.Fatalf("lookup used %q, want canonical identifier", h.users.calls[0])
	}
}

func TestActiveGlobalBan(t *testing.T) {
	h := newHarness()
	h.bans.bans["2"] = []ban.Ban{{ID: 1, UserID: "2", Level: ban.LevelGlobal, Reason: "cheating", CreatedAt: testNow.Add(-time.Hour)}}
	engine := h.engine(t, Config{})

	outcome := mustLogin(t, engine, Request{Identifier: "bob", Password: "secret", IP: "1.2.3.4"})
	got, ok := outcome.(UserBanned)
	if !ok {
		t.Fatalf("outcome = %T, want UserBanned", outcome)
	}
	if got.Reason != "cheating" || got.ExpiresAt != nil {
		t.Fatalf("unexpected ban outcome: %+v", got)
	}
	if outcome.Recoverable() {
		t.Fatal("ban must not be recoverable")
	}
	rows := h.ledger.snapshot()
	if len(rows) != 1 || !rows[0].Success {
		t.Fatalf("expected recorded success before ban check, got %+v", rows)
	}
}

func TestScopedBansDoNotBlockLogin(t *testing.T) {
	h := newHarness()
	h.bans.bans["2"] = []ban.Ban{{ID: 1, UserID: "2", Level: ban.LevelChat, Reason: "spam"}}
	engine := h.engine(t, Config{})

	outcome := mustLogin(t, engine, Request{Identifier: "bob", Password: "secret", IP: "1.2.3.4"})
	if _, ok := outcome.(SuccessfulLogin); !ok {
		t.Fatalf("outcome = %T, want SuccessfulLogin", outcome)
	}
}

func TestThrottlingRegardlessOfCredentials(t *testing.T) {
	h := newHarness()
	ip := "5.6.7.8"
	for i := 0; i < 12; i++ {
		at := testNow.Add(-time.Duration(12-i) * time.Minute)
		if i == 11 {
			at = testNow.Add(-time.Minute)
		}
		if err := h.ledger.Record(context.Background(), attempt.Failed(ip, "", "ghost", at)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	engine := h.engine(t, Config{})

	for _, req := range []Request{
		{Identifier: "alice", Password: "secret", IP: ip},
		{Identifier: "alice", Password: "wrong", IP: ip},
		{Identifier: "ghost", Password: "x", IP: ip},
	} {
		outcome := mustLogin(t, engine, req)
		if _, ok := outcome.(ThrottlingActive); !ok {
			t.Fatalf("outcome for %q/%q = %T, want ThrottlingActive", req.Identifier, req.Password, outcome)
		}
	}

	rows := h.ledger.snapshot()
	if len(rows) != 15 {
		t.Fatalf("ledger rows = %d, want 15", len(rows))
	}
	for _, row := range rows[12:] {
		if row.Success {
			t.Fatalf("throttled attempt recorded as success: %+v", row)
		}
	}
	if rows[12].UserID != "1" || rows[14].Identifier != "ghost" {
		t.Fatalf("unexpected throttled rows: %+v", rows[12:])
	}
}

func TestThresholdBoundaryDoesNotThrottle(t *testing.T) {
	h := newHarness()
	ip := "5.6.7.8"
	for i := 0; i < 10; i++ {
		if err := h.ledger.Record(context.Background(), attempt.Failed(ip, "", "ghost", testNow.Add(-time.Minute))); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	engine := h.engine(t, Config{})

	outcome := mustLogin(t, engine, Request{Identifier: "alice", Password: "secret", IP: ip})
	if _, ok := outcome.(SuccessfulLogin); !ok {
		t.Fatalf("outcome = %T, want SuccessfulLogin at threshold", outcome)
	}
}

func TestNoGameOwnership(t *testing.T) {
	h := newHarness()
	engine := h.engine(t, Config{})

	outcome := mustLogin(t, engine, Request{Identifier: "carol", Password: "secret", IP: "1.2.3.4", RequiresGameOwnership: true})
	if _, ok := outcome.(NoGameOwnership); !ok {
		t.Fatalf("outcome = %T, want NoGameOwnership", outcome)
	}

	h.ownership.owners["3"] = true
	outcome = mustLogin(t, engine, Request{Identifier: "carol", Password: "secret", IP: "1.2.3.4", RequiresGameOwnership: true})
	if _, ok := outcome.(SuccessfulLogin); !ok {
		t.Fatalf("outcome = %T, want SuccessfulLogin with ownership", outcome)
	}
}

func TestEnumerationResistance(t *testing.T) {
	h := newHarness()
	engine := h.engine(t, Config{})

	unknown := mustLogin(t, engine, Request{Identifier: "nobody@example.com", Password: "secret", IP: "1.2.3.4"})
	wrong := mustLogin(t, engine, Request{Identifier: "alice@example.com", Password: "nope", IP: "1.2.3.4"})

	if _, ok := unknown.(CredentialsMismatch); !ok {
		t.Fatalf("unknown outcome = %T", unknown)
	}
	if _, ok := wrong.(CredentialsMismatch); !ok {
		t.Fatalf("wrong password outcome = %T", wrong)
	}
	if h.hasher.verifies != 2 {
		t.Fatalf("verifies = %d, want one per attempt", h.hasher.verifies)
	}

	rows := h.ledger.snapshot()
	if rows[0].UserID != "" || rows[0].Identifier != "nobody@example.com" {
		t.Fatalf("unknown row: %+v", rows[0])
	}
	if rows[1].UserID != "1" || rows[1].Identifier != "" {
		t.Fatalf("known row: %+v", rows[1])
	}
}

func TestMissedBan(t *testing.T) {
	h := newHarness()
	expired := testNow.Add(-24 * time.Hour)
	h.bans.bans["1"] = []ban.Ban{{
		ID:        9,
		UserID:    "1",
		Level:     ban.LevelGlobal,
		Reason:    "toxicity",
		CreatedAt: testNow.Add(-48 * time.Hour),
		ExpiresAt: &expired,
	}}
	if err := h.ledger.Record(context.Background(), attempt.Succeeded("1.2.3.4", "1", testNow.Add(-72*time.Hour))); err != nil {
		t.Fatalf("seed: %v", err)
	}

	disabled := mustLogin(t, h.engine(t, Config{}), Request{Identifier: "alice", Password: "secret", IP: "1.2.3.4"})
	if _, ok := disabled.(SuccessfulLogin); !ok {
		t.Fatalf("outcome with notice disabled = %T", disabled)
	}

	h.ledger.rows = h.ledger.rows[:1]
	outcome := mustLogin(t, h.engine(t, Config{MissedBanNotice: true}), Request{Identifier: "alice", Password: "secret", IP: "1.2.3.4"})
	got, ok := outcome.(MissedBan)
	if !ok {
		t.Fatalf("outcome = %T, want MissedBan", outcome)
	}
	if got.Reason != "toxicity" || !got.StartTime.Equal(testNow.Add(-48*time.Hour)) || !got.EndTime.Equal(expired) {
		t.Fatalf("unexpected missed ban: %+v", got)
	}
	if !outcome.Recoverable() {
		t.Fatal("missed ban must be recoverable")
	}
}

func TestMissedBanSkippedOnFirstLogin(t *testing.T) {
	h := newHarness()
	expired := testNow.Add(-24 * time.Hour)
	h.bans.bans["1"] = []ban.Ban{{ID: 9, UserID: "1", Level: ban.LevelGlobal, Reason: "x", CreatedAt: testNow.Add(-48 * time.Hour), ExpiresAt: &expired}}

	outcome := mustLogin(t, h.engine(t, Config{MissedBanNotice: true}), Request{Identifier: "alice", Password: "secret", IP: "1.2.3.4"})
	if _, ok := outcome.(SuccessfulLogin); !ok {
		t.Fatalf("outcome = %T, want SuccessfulLogin", outcome)
	}
}

func TestCollaboratorErrorsBecomeTechnicalError(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		// ownership makes the request need a game ownership link.
		ownership bool
		// successRecorded is set when the failure comes after the success row.
		successRecorded bool
	}{
		{name: "user lookup", setup: func(h *harness) { h.users.err = errBoom }},
		{name: "hasher", setup: func(h *harness) { h.hasher.err = errBoom }},
		{name: "ledger", setup: func(h *harness) { h.ledger.recordErr = errBoom }},
		{name: "bans", setup: func(h *harness) { h.bans.err = errBoom }, successRecorded: true},
		{name: "ownership", setup: func(h *harness) { h.ownership.err = errBoom }, ownership: true, successRecorded: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Identifier: "alice", Password: "secret", IP: "1.2.3.4", RequiresGameOwnership: tt.ownership}

			h := newHarness()
			tt.setup(h)
			if _, err := h.engine(t, Config{}).Login(context.Background(), req); !errors.Is(err, errBoom) {
				t.Fatalf("expected wrapped error, got %v", err)
			}
			if tt.successRecorded {
				rows := h.ledger.snapshot()
				if len(rows) != 1 || !rows[0].Success || rows[0].UserID != "1" {
					t.Fatalf("success row must survive a later failure, got %+v", rows)
				}
			}

			h = newHarness()
			tt.setup(h)
			outcome := h.engine(t, Config{}).Decide(context.Background(), req)
			technical, ok := outcome.(TechnicalError)
			if !ok || !errors.Is(technical.Err, errBoom) {
				t.Fatalf("outcome = %#v, want TechnicalError", outcome)
			}
		})
	}
}

func TestThrottleErrorIsReturned(t *testing.T) {
	h := newHarness()
	engine, err := NewEngine(Config{}, Deps{
		Users:     h.users,
		Bans:      h.bans,
		Ownership: h.ownership,
		Ledger:    h.ledger,
		Throttle:  stubThrottle{err: errBoom},
		Hasher:    h.hasher,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := engine.Login(context.Background(), Request{Identifier: "alice", Password: "secret", IP: "1.2.3.4"}); !errors.Is(err, errBoom) {
		t.Fatalf("expected throttle error, got %v", err)
	}
	if len(h.ledger.snapshot()) != 0 {
		t.Fatal("expected no ledger rows when throttle check fails")
	}
}

func TestNewEngineRequiresDeps(t *testing.T) {
	if _, err := NewEngine(Config{}, Deps{}); err == nil {
		t.Fatal("expected error for missing deps")
	}
}

func TestOutcomeNames(t *testing.T) {
	outcomes := map[string]Outcome{
		"throttling_active":    ThrottlingActive{},
		"credentials_mismatch": CredentialsMismatch{},
		"user_banned":          UserBanned{},
		"missed_ban":           MissedBan{},
		"no_game_ownership":    NoGameOwnership{},
		"successful_login":     SuccessfulLogin{},
		"technical_error":      TechnicalError{},
	}
	for want, outcome := range outcomes {
		if got := Name(outcome); got != want {
			t.Fatalf("Name(%T) = %q, want %q", outcome, got, want)
		}
	}
}
