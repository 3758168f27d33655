// Package login decides the outcome of a credential login.
//
// A decision is one synchronous pass over the attempt ledger, identity store,
// bans and ownership links. The only state shared between requests is the
// ledger.
package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/louisbranch/authgate/internal/services/auth/attempt"
	"github.com/louisbranch/authgate/internal/services/auth/ban"
	"github.com/louisbranch/authgate/internal/services/auth/password"
	"github.com/louisbranch/authgate/internal/services/auth/storage"
	"github.com/louisbranch/authgate/internal/services/auth/user"
)

const tracerName = "github.com/louisbranch/authgate/internal/services/auth/login"

// Config toggles optional engine behaviour.
type Config struct {
	// MissedBanNotice reports bans that expired since the previous login.
	MissedBanNotice bool `env:"AUTHGATE_MISSED_BAN_NOTICE" envDefault:"false"`
}

// Request is one login try.
type Request struct {
	// Identifier is a username or email.
	Identifier string
	Password   string
	IP         string
	// RequiresGameOwnership is set by the caller for clients that only admit
	// owners.
	RequiresGameOwnership bool
}

// Throttler decides whether an IP is currently blocked.
type Throttler interface {
	ShouldThrottle(ctx context.Context, ip string, now time.Time) (bool, error)
}

// UserLookup resolves accounts by canonical identifier.
type UserLookup interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (user.User, error)
}

// BanLister lists a user's global bans.
type BanLister interface {
	ListGlobalBans(ctx context.Context, userID string) ([]ban.Ban, error)
}

// OwnershipChecker reports whether a user owns the game.
type OwnershipChecker interface {
	HasOwnership(ctx context.Context, userID string) (bool, error)
}

// Deps are the engine's collaborators. All are required except Logger and
// Clock.
type Deps struct {
	Users     UserLookup
	Bans      BanLister
	Ownership OwnershipChecker
	Ledger    attempt.Ledger
	Throttle  Throttler
	Hasher    password.Hasher
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Engine runs login decisions.
type Engine struct {
	cfg       Config
	users     UserLookup
	bans      BanLister
	ownership OwnershipChecker
	ledger    attempt.Ledger
	throttle  Throttler
	hasher    password.Hasher
	logger    *zap.Logger
	clock     func() time.Time
	tracer    trace.Tracer
}

// NewEngine validates deps and builds an engine.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Users == nil:
		return nil, errors.New("user lookup is required")
	case deps.Bans == nil:
		return nil, errors.New("ban lister is required")
	case deps.Ownership == nil:
		return nil, errors.New("ownership checker is required")
	case deps.Ledger == nil:
		return nil, errors.New("attempt ledger is required")
	case deps.Throttle == nil:
		return nil, errors.New("throttler is required")
	case deps.Hasher == nil:
		return nil, errors.New("password hasher is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		cfg:       cfg,
		users:     deps.Users,
		bans:      deps.Bans,
		ownership: deps.Ownership,
		ledger:    deps.Ledger,
		throttle:  deps.Throttle,
		hasher:    deps.Hasher,
		logger:    logger,
		clock:     clock,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// Login decides req. Business results are returned as an Outcome; err is
// non-nil only for infrastructure failures, which callers surface as
// TechnicalError. Attempts recorded before a failure stay recorded.
func (e *Engine) Login(ctx context.Context, req Request) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "login.Decide", trace.WithAttributes(
		attribute.String("client.ip", req.IP),
		attribute.Bool("login.requires_ownership", req.RequiresGameOwnership),
	))
	defer span.End()

	outcome, err := e.decide(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login decision failed")
		e.logger.Error("login decision failed", zap.String("ip", req.IP), zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("login.outcome", Name(outcome)))
	e.logger.Info("login decided", zap.String("ip", req.IP), zap.String("outcome", Name(outcome)))
	return outcome, nil
}

// Decide is Login with infrastructure failures folded into TechnicalError.
func (e *Engine) Decide(ctx context.Context, req Request) Outcome {
	outcome, err := e.Login(ctx, req)
	if err != nil {
		return TechnicalError{Err: err}
	}
	return outcome
}

func (e *Engine) decide(ctx context.Context, req Request) (Outcome, error) {
	now := e.clock().UTC()

	// The throttle reads history before this attempt is written.
	throttled, err := e.throttle.ShouldThrottle(ctx, req.IP, now)
	if err != nil {
		return nil, fmt.Errorf("check throttle: %w", err)
	}

	account, found, err := e.resolve(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}

	// Unknown accounts verify against an empty hash, which still costs one
	// full comparison.
	storedHash := ""
	if found {
		storedHash = account.PasswordHash
	}
	matched, err := e.hasher.Verify(req.Password, storedHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if throttled {
		if err := e.ledger.Record(ctx, attempt.Failed(req.IP, account.ID, req.Identifier, now)); err != nil {
			return nil, fmt.Errorf("record throttled attempt: %w", err)
		}
		return ThrottlingActive{}, nil
	}
	if !found || !matched {
		if err := e.ledger.Record(ctx, attempt.Failed(req.IP, account.ID, req.Identifier, now)); err != nil {
			return nil, fmt.Errorf("record failed attempt: %w", err)
		}
		return CredentialsMismatch{}, nil
	}

	var (
		lastLogin    time.Time
		hasLastLogin bool
	)
	if e.cfg.MissedBanNotice {
		lastLogin, hasLastLogin, err = e.ledger.LastSuccessfulLogin(ctx, account.ID, now)
		if err != nil {
			return nil, fmt.Errorf("read last successful login: %w", err)
		}
	}
	if err := e.ledger.Record(ctx, attempt.Succeeded(req.IP, account.ID, now)); err != nil {
		return nil, fmt.Errorf("record successful attempt: %w", err)
	}

	bans, err := e.bans.ListGlobalBans(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("list bans: %w", err)
	}
	if active, ok := ban.ActiveGlobal(bans, now); ok {
		return UserBanned{Reason: active.Reason, ExpiresAt: active.ExpiresAt}, nil
	}
	if e.cfg.MissedBanNotice && hasLastLogin {
		if missed, ok := ban.MissedGlobal(bans, lastLogin, now); ok {
			return MissedBan{Reason: missed.Reason, StartTime: missed.CreatedAt, EndTime: *missed.ExpiresAt}, nil
		}
	}

	if req.RequiresGameOwnership {
		owned, err := e.ownership.HasOwnership(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("check ownership: %w", err)
		}
		if !owned {
			return NoGameOwnership{}, nil
		}
	}

	return SuccessfulLogin{UserID: account.ID, Username: account.Username}, nil
}

func (e *Engine) resolve(ctx context.Context, identifier string) (user.User, bool, error) {
	canonical := user.CanonicalIdentifier(identifier)
	if canonical == "" {
		return user.User{}, false, nil
	}
	account, err := e.users.GetUserByIdentifier(ctx, canonical)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, false, nil
	}
	if err != nil {
		return user.User{}, false, fmt.Errorf("resolve user: %w", err)
	}
	return account, true, nil
}
