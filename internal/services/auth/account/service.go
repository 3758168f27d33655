package account

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/authgate/internal/platform/errors"
	"github.com/louisbranch/authgate/internal/platform/id"
	"github.com/louisbranch/authgate/internal/services/auth/ban"
	"github.com/louisbranch/authgate/internal/services/auth/password"
	"github.com/louisbranch/authgate/internal/services/auth/storage"
	"github.com/louisbranch/authgate/internal/services/auth/user"
)

var (
	// ErrPasswordMismatch indicates a wrong current password.
	ErrPasswordMismatch = apperrors.New(apperrors.CodeAccountPasswordMismatch, "current password is incorrect")
	// ErrInvalidLink indicates an ownership link without provider or external id.
	ErrInvalidLink = apperrors.New(apperrors.CodeOwnershipInvalidLink, "provider and external id are required")
)

// Config configures account flows.
type Config struct {
	Tokens TokenConfig
	// TermsVersion is recorded on accounts that accept the terms at signup.
	TermsVersion string `env:"AUTHGATE_TERMS_VERSION" envDefault:"1"`
	// PublicURL prefixes links sent by email.
	PublicURL string `env:"AUTHGATE_PUBLIC_URL" envDefault:"http://localhost:8080"`
}

// Deps are the service collaborators.
type Deps struct {
	Users     storage.UserStore
	Bans      storage.BanStore
	Ownership storage.OwnershipStore
	Hasher    password.Hasher
	Mailer    Mailer
	Logger    *zap.Logger
	Clock     func() time.Time
	NewID     func() (string, error)
}

// Service runs account operations.
type Service struct {
	cfg       Config
	users     storage.UserStore
	bans      storage.BanStore
	ownership storage.OwnershipStore
	hasher    password.Hasher
	mailer    Mailer
	logger    *zap.Logger
	clock     func() time.Time
	newID     func() (string, error)
	tokens    tokenSigner
}

// NewService validates cfg and deps.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if err := cfg.Tokens.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Users == nil:
		return nil, errors.New("user store is required")
	case deps.Bans == nil:
		return nil, errors.New("ban store is required")
	case deps.Ownership == nil:
		return nil, errors.New("ownership store is required")
	case deps.Hasher == nil:
		return nil, errors.New("password hasher is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mailer := deps.Mailer
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		cfg:       cfg,
		users:     deps.Users,
		bans:      deps.Bans,
		ownership: deps.Ownership,
		hasher:    deps.Hasher,
		mailer:    mailer,
		logger:    logger,
		clock:     clock,
		newID:     newID,
		tokens:    tokenSigner{cfg: cfg.Tokens, clock: clock},
	}, nil
}

// RegisterInput is a signup form.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	IP          string
	AcceptTerms bool
}

// Register validates a signup and mails an activation link. No account
// exists until the link is used.
func (s *Service) Register(ctx context.Context, in RegisterInput) error {
	if !in.AcceptTerms {
		return user.ErrTermsRequired
	}
	normalized, err := user.NormalizeCreateUserInput(user.CreateUserInput{
		Username:       in.Username,
		Email:          in.Email,
		RegistrationIP: in.IP,
		TermsVersion:   s.cfg.TermsVersion,
	})
	if err != nil {
		return err
	}
	if err := password.ValidatePolicy(in.Password); err != nil {
		return err
	}
	for _, identifier := range []string{normalized.Username, normalized.Email} {
		taken, err := s.identifierTaken(ctx, identifier)
		if err != nil {
			return err
		}
		if taken {
			return storage.ErrUserExists
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return err
	}
	token, err := s.tokens.issueActivation(activationClaims{
		Username:       normalized.Username,
		Email:          normalized.Email,
		PasswordHash:   hash,
		RegistrationIP: normalized.RegistrationIP,
		TermsVersion:   normalized.TermsVersion,
	})
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, Message{
		To:      normalized.Email,
		Subject: "Activate your account",
		Body:    "Confirm your registration: " + s.link("/register/activate", token),
	}); err != nil {
		return fmt.Errorf("send activation email: %w", err)
	}
	s.logger.Info("registration pending", zap.String("username", normalized.Username))
	return nil
}

// Activate creates the account carried by an activation token.
func (s *Service) Activate(ctx context.Context, token string) (user.User, error) {
	claims, err := s.tokens.parseActivation(token)
	if err != nil {
		return user.User{}, err
	}
	created, err := user.CreateUser(user.CreateUserInput{
		Username:       claims.Username,
		Email:          claims.Email,
		PasswordHash:   claims.PasswordHash,
		RegistrationIP: claims.RegistrationIP,
		TermsVersion:   claims.TermsVersion,
	}, s.clock, s.newID)
	if err != nil {
		return user.User{}, err
	}
	if err := s.users.PutUser(ctx, created); err != nil {
		return user.User{}, err
	}
	s.logger.Info("account activated", zap.String("user_id", created.ID))
	return created, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	account, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(current, account.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPasswordMismatch
	}
	return s.setPassword(ctx, account.ID, next)
}

// RequestPasswordReset mails a reset link when email belongs to an account.
// Unknown addresses succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	canonical := user.CanonicalIdentifier(email)
	if user.ValidateEmail(canonical) != nil {
		return nil
	}
	account, err := s.users.GetUserByIdentifier(ctx, canonical)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && account.Email != canonical) {
		return nil
	}
	if err != nil {
		return err
	}

	token, err := s.tokens.issueReset(account.ID, account.PasswordHash)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, Message{
		To:      account.Email,
		Subject: "Reset your password",
		Body:    "Choose a new password: " + s.link("/password/reset", token),
	}); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// ResetPassword sets a new password from a reset token. Each token works
// once.
func (s *Service) ResetPassword(ctx context.Context, token, next string) error {
	claims, err := s.tokens.parseReset(token)
	if err != nil {
		return err
	}
	account, err := s.users.GetUser(ctx, claims.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrTokenInvalid
	}
	if err != nil {
		return err
	}
	if fingerprint(account.PasswordHash) != claims.Fingerprint {
		return ErrTokenInvalid
	}
	return s.setPassword(ctx, account.ID, next)
}

// BanUser bans userID. A zero duration bans indefinitely.
func (s *Service) BanUser(ctx context.Context, userID string, level ban.Level, reason string, duration time.Duration) (ban.Ban, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return ban.Ban{}, err
	}
	b, err := ban.New(userID, level, reason, duration, s.clock())
	if err != nil {
		return ban.Ban{}, err
	}
	stored, err := s.bans.PutBan(ctx, b)
	if err != nil {
		return ban.Ban{}, err
	}
	s.logger.Info("user banned",
		zap.String("user_id", userID),
		zap.Int64("ban_id", stored.ID),
		zap.String("level", string(stored.Level)),
	)
	return stored, nil
}

// RevokeBan lifts a ban. A ban can be revoked only once.
func (s *Service) RevokeBan(ctx context.Context, banID int64) (ban.Ban, error) {
	current, err := s.bans.GetBan(ctx, banID)
	if err != nil {
		return ban.Ban{}, err
	}
	revoked, err := ban.Revoke(current, s.clock())
	if err != nil {
		return ban.Ban{}, err
	}
	if err := s.bans.RevokeBan(ctx, banID, *revoked.RevokedAt); err != nil {
		return ban.Ban{}, err
	}
	s.logger.Info("ban revoked", zap.Int64("ban_id", banID))
	return revoked, nil
}

// ListBans returns every ban for userID.
func (s *Service) ListBans(ctx context.Context, userID string) ([]ban.Ban, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.bans.ListBans(ctx, userID)
}

// LinkOwnership records whether an external account owns the game.
func (s *Service) LinkOwnership(ctx context.Context, userID, provider, externalID string, owned bool) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	externalID = strings.TrimSpace(externalID)
	if provider == "" || externalID == "" {
		return ErrInvalidLink
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return err
	}
	return s.ownership.PutOwnershipLink(ctx, storage.OwnershipLink{
		UserID:     userID,
		Provider:   provider,
		ExternalID: externalID,
		Ownership:  owned,
		CreatedAt:  s.clock().UTC(),
	})
}

func (s *Service) setPassword(ctx context.Context, userID, next string) error {
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	return s.users.UpdatePasswordHash(ctx, userID, hash, s.clock().UTC())
}

func (s *Service) identifierTaken(ctx context.Context, identifier string) (bool, error) {
	_, err := s.users.GetUserByIdentifier(ctx, identifier)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check identifier: %w", err)
	}
	return true, nil
}

func (s *Service) link(path, token string) string {
	query := url.Values{}
	query.Set("token", token)
	return strings.TrimRight(s.cfg.PublicURL, "/") + path + "?" + query.Encode()
}
