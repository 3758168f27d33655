package httpapi

import (
	"context"
	"time"

	"github.com/louisbranch/authgate/internal/services/auth/account"
	"github.com/louisbranch/authgate/internal/services/auth/ban"
	"github.com/louisbranch/authgate/internal/services/auth/login"
	"github.com/louisbranch/authgate/internal/services/auth/oauth"
	"github.com/louisbranch/authgate/internal/services/auth/user"
)

type fakeLogins struct {
	startResult  oauth.Result
	startErr     error
	submitResult oauth.Result
	submitErr    error

	startChallenge string
	submitted      []oauth.Credentials
}

func (f *fakeLogins) Start(_ context.Context, challenge string) (oauth.Result, error) {
	f.startChallenge = challenge
	return f.startResult, f.startErr
}

func (f *fakeLogins) Submit(_ context.Context, creds oauth.Credentials) (oauth.Result, error) {
	f.submitted = append(f.submitted, creds)
	return f.submitResult, f.submitErr
}

type fakeAuth struct {
	outcome login.Outcome
	got     []login.Request
}

func (f *fakeAuth) Decide(_ context.Context, req login.Request) login.Outcome {
	f.got = append(f.got, req)
	if f.outcome == nil {
		return login.CredentialsMismatch{}
	}
	return f.outcome
}

type fakeAccounts struct {
	registerErr  error
	activateUser user.User
	activateErr  error
	resetErr     error
	changeErr    error
	banErr       error
	revokeBan    ban.Ban
	revokeErr    error
	bans         []ban.Ban
	listErr      error
	linkErr      error

	registered  []account.RegisterInput
	resetEmails []string
	resets      []string
	changes     []string
	banned      []ban.Ban
	revokedIDs  []int64
	linked      []string
}

func (f *fakeAccounts) Register(_ context.Context, in account.RegisterInput) error {
	f.registered = append(f.registered, in)
	return f.registerErr
}

func (f *fakeAccounts) Activate(_ context.Context, _ string) (user.User, error) {
	return f.activateUser, f.activateErr
}

func (f *fakeAccounts) ChangePassword(_ context.Context, userID, current, next string) error {
	f.changes = append(f.changes, userID+":"+current+":"+next)
	return f.changeErr
}

func (f *fakeAccounts) RequestPasswordReset(_ context.Context, email string) error {
	f.resetEmails = append(f.resetEmails, email)
	return nil
}

func (f *fakeAccounts) ResetPassword(_ context.Context, token, _ string) error {
	f.resets = append(f.resets, token)
	return f.resetErr
}

func (f *fakeAccounts) BanUser(_ context.Context, userID string, level ban.Level, reason string, duration time.Duration) (ban.Ban, error) {
	if f.banErr != nil {
		return ban.Ban{}, f.banErr
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err := ban.New(userID, level, reason, duration, now)
	if err != nil {
		return ban.Ban{}, err
	}
	b.ID = int64(len(f.banned) + 1)
	f.banned = append(f.banned, b)
	return b, nil
}

func (f *fakeAccounts) RevokeBan(_ context.Context, banID int64) (ban.Ban, error) {
	f.revokedIDs = append(f.revokedIDs, banID)
	return f.revokeBan, f.revokeErr
}

func (f *fakeAccounts) ListBans(_ context.Context, _ string) ([]ban.Ban, error) {
	return f.bans, f.listErr
}

func (f *fakeAccounts) LinkOwnership(_ context.Context, userID, provider, externalID string, owned bool) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	entry := userID + "/" + provider + "/" + externalID
	if owned {
		entry += "/owned"
	}
	f.linked = append(f.linked, entry)
	return nil
}
