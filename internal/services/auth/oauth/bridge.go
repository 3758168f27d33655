package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/louisbranch/authgate/internal/services/auth/ban"
	"github.com/louisbranch/authgate/internal/services/auth/login"
)

// Reject error codes sent to the authorization server.
const (
	ErrorUserBanned           = "user_banned"
	ErrorOwnershipNotVerified = "ownership_not_verified"
	ErrorTechnical            = "technical_error"
)

// Form error flags for a login form redisplay.
const (
	FormTooManyAttempts = "too_many_attempts"
	FormBadCredentials  = "bad_credentials"
	FormMissedBan       = "missed_ban"
)

// Decider runs a login decision.
type Decider interface {
	Decide(ctx context.Context, req login.Request) login.Outcome
}

// Credentials is a submitted login form.
type Credentials struct {
	Challenge  string
	Identifier string
	Password   string
	IP         string
	Remember   bool
}

// Form is a login form to show again, optionally with an error.
type Form struct {
	Challenge  string `json:"challenge"`
	ClientID   string `json:"client_id,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	// Missed ban details.
	BanReason string     `json:"ban_reason,omitempty"`
	BanStart  *time.Time `json:"ban_start,omitempty"`
	BanEnd    *time.Time `json:"ban_end,omitempty"`
}

// Result is either a redirect back to the authorization server or a form to
// redisplay. Rejected is set when the redirect follows a rejection.
type Result struct {
	RedirectTo string
	Rejected   *RejectLogin
	Form       *Form
}

// Bridge maps login outcomes onto authorization server calls.
type Bridge struct {
	cfg     Config
	client  Client
	decider Decider
	bans    login.BanLister
	clock   func() time.Time
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewBridge builds a bridge. bans is consulted before a remembered login is
// accepted without a form.
func NewBridge(cfg Config, client Client, decider Decider, bans login.BanLister, logger *zap.Logger) (*Bridge, error) {
	if client == nil {
		return nil, errors.New("authorization server client is required")
	}
	if decider == nil {
		return nil, errors.New("login decider is required")
	}
	if bans == nil {
		return nil, errors.New("ban lister is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		cfg:     cfg,
		client:  client,
		decider: decider,
		bans:    bans,
		clock:   time.Now,
		logger:  logger,
		tracer:  otel.Tracer("github.com/louisbranch/authgate/internal/services/auth/oauth"),
	}, nil
}

// Start begins a login for challenge. A login the authorization server has
// already authenticated is accepted at once unless the subject is under an
// active global ban; otherwise the empty form is returned.
func (b *Bridge) Start(ctx context.Context, challenge string) (Result, error) {
	ctx, span := b.tracer.Start(ctx, "oauth.StartLogin")
	defer span.End()

	request, err := b.client.GetLoginRequest(ctx, challenge)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get login request")
		return Result{}, fmt.Errorf("get login request: %w", err)
	}
	if request.Skip {
		span.SetAttributes(attribute.Bool("login.skip", true))
		return b.skip(ctx, request)
	}
	return Result{Form: &Form{Challenge: challenge, ClientID: request.Client.ClientID}}, nil
}

// skip accepts a remembered login. The subject was authenticated earlier, so
// only the ban gate is run again.
func (b *Bridge) skip(ctx context.Context, request LoginRequest) (Result, error) {
	creds := Credentials{Challenge: request.Challenge}
	bans, err := b.bans.ListGlobalBans(ctx, request.Subject)
	if err != nil {
		return b.Apply(ctx, creds, login.TechnicalError{Err: fmt.Errorf("list bans: %w", err)})
	}
	if active, ok := ban.ActiveGlobal(bans, b.clock().UTC()); ok {
		return b.Apply(ctx, creds, login.UserBanned{Reason: active.Reason, ExpiresAt: active.ExpiresAt})
	}
	redirect, err := b.client.AcceptLogin(ctx, request.Challenge, AcceptLogin{Subject: request.Subject})
	if err != nil {
		return Result{}, fmt.Errorf("accept skipped login: %w", err)
	}
	return Result{RedirectTo: redirect.RedirectTo}, nil
}

// Submit decides a login form and reports the outcome.
func (b *Bridge) Submit(ctx context.Context, creds Credentials) (Result, error) {
	ctx, span := b.tracer.Start(ctx, "oauth.SubmitLogin")
	defer span.End()

	request, err := b.client.GetLoginRequest(ctx, creds.Challenge)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get login request")
		return Result{}, fmt.Errorf("get login request: %w", err)
	}
	requiresOwnership := b.cfg.RequiresOwnership(request.Client.ClientID)
	span.SetAttributes(
		attribute.String("oauth.client_id", request.Client.ClientID),
		attribute.Bool("login.requires_ownership", requiresOwnership),
	)

	outcome := b.decider.Decide(ctx, login.Request{
		Identifier:            creds.Identifier,
		Password:              creds.Password,
		IP:                    creds.IP,
		RequiresGameOwnership: requiresOwnership,
	})
	result, err := b.Apply(ctx, creds, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply outcome")
		return Result{}, err
	}
	return result, nil
}

// Apply reports outcome for creds.Challenge.
func (b *Bridge) Apply(ctx context.Context, creds Credentials, outcome login.Outcome) (Result, error) {
	switch o := outcome.(type) {
	case login.SuccessfulLogin:
		body := AcceptLogin{Subject: o.UserID, Remember: creds.Remember}
		if creds.Remember {
			body.RememberFor = int64(b.cfg.RememberFor / time.Second)
		}
		redirect, err := b.client.AcceptLogin(ctx, creds.Challenge, body)
		if err != nil {
			return Result{}, fmt.Errorf("accept login: %w", err)
		}
		return Result{RedirectTo: redirect.RedirectTo}, nil
	case login.UserBanned:
		return b.reject(ctx, creds.Challenge, RejectLogin{
			Error:            ErrorUserBanned,
			ErrorDescription: BanDescription(o),
			StatusCode:       http.StatusForbidden,
		})
	case login.NoGameOwnership:
		return b.reject(ctx, creds.Challenge, RejectLogin{
			Error:            ErrorOwnershipNotVerified,
			ErrorDescription: "the account does not own the game",
			StatusCode:       http.StatusForbidden,
		})
	case login.TechnicalError:
		b.logger.Error("login technical error", zap.String("ip", creds.IP), zap.Error(o.Err))
		return b.reject(ctx, creds.Challenge, RejectLogin{
			Error:            ErrorTechnical,
			ErrorDescription: "a technical error occurred",
			StatusCode:       http.StatusInternalServerError,
		})
	case login.ThrottlingActive:
		return formResult(creds, FormTooManyAttempts, "Too many failed login attempts. Please try again later."), nil
	case login.CredentialsMismatch:
		return formResult(creds, FormBadCredentials, "Invalid username or password."), nil
	case login.MissedBan:
		result := formResult(creds, FormMissedBan, "Your account was banned while you were away. Log in again to continue.")
		start, end := o.StartTime, o.EndTime
		result.Form.BanReason = o.Reason
		result.Form.BanStart = &start
		result.Form.BanEnd = &end
		return result, nil
	default:
		return Result{}, fmt.Errorf("unhandled login outcome %T", outcome)
	}
}

func (b *Bridge) reject(ctx context.Context, challenge string, body RejectLogin) (Result, error) {
	redirect, err := b.client.RejectLogin(ctx, challenge, body)
	if err != nil {
		return Result{}, fmt.Errorf("reject login: %w", err)
	}
	return Result{RedirectTo: redirect.RedirectTo, Rejected: &body}, nil
}

func formResult(creds Credentials, flag, message string) Result {
	return Result{Form: &Form{
		Challenge:  creds.Challenge,
		Identifier: creds.Identifier,
		Error:      flag,
		Message:    message,
	}}
}

// BanDescription renders the rejection text for a ban.
func BanDescription(o login.UserBanned) string {
	until := "forever"
	if o.ExpiresAt != nil {
		until = "until " + o.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if o.Reason == "" {
		return "banned " + until
	}
	return fmt.Sprintf("banned %s: %s", until, o.Reason)
}
