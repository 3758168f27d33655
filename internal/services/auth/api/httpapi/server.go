package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/louisbranch/authgate/internal/services/auth/account"
	"github.com/louisbranch/authgate/internal/services/auth/ban"
	"github.com/louisbranch/authgate/internal/services/auth/login"
	"github.com/louisbranch/authgate/internal/services/auth/oauth"
	"github.com/louisbranch/authgate/internal/services/auth/user"
)

// Config configures the HTTP surface.
type Config struct {
	// AdminSecret guards the /admin routes. Admin routes are disabled when
	// empty.
	AdminSecret string `env:"AUTHGATE_ADMIN_SECRET"`
}

// LoginFlow drives an authorization server login.
type LoginFlow interface {
	Start(ctx context.Context, challenge string) (oauth.Result, error)
	Submit(ctx context.Context, creds oauth.Credentials) (oauth.Result, error)
}

// Authenticator runs the login gate for requests made outside an
// authorization server flow.
type Authenticator interface {
	Decide(ctx context.Context, req login.Request) login.Outcome
}

// Accounts runs registration, recovery and ban administration.
type Accounts interface {
	Register(ctx context.Context, in account.RegisterInput) error
	Activate(ctx context.Context, token string) (user.User, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, next string) error
	BanUser(ctx context.Context, userID string, level ban.Level, reason string, duration time.Duration) (ban.Ban, error)
	RevokeBan(ctx context.Context, banID int64) (ban.Ban, error)
	ListBans(ctx context.Context, userID string) ([]ban.Ban, error)
	LinkOwnership(ctx context.Context, userID, provider, externalID string, owned bool) error
}

type handler struct {
	cfg      Config
	logins   LoginFlow
	auth     Authenticator
	accounts Accounts
	logger   *zap.Logger
}

// New builds the echo instance with every route registered.
func New(cfg Config, logins LoginFlow, auth Authenticator, accounts Accounts, logger *zap.Logger) (*echo.Echo, error) {
	if logins == nil {
		return nil, errors.New("login flow is required")
	}
	if auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if accounts == nil {
		return nil, errors.New("account service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{cfg: cfg, logins: logins, auth: auth, accounts: accounts, logger: logger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(true),
	)
	e.HTTPErrorHandler = h.httpErrorHandler

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	e.GET("/up", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e.GET("/login", h.handleLoginStart)
	e.POST("/login", h.handleLoginSubmit)

	e.POST("/register", h.handleRegister)
	e.GET("/register/activate", h.handleActivate)
	e.POST("/password/forgot", h.handleForgotPassword)
	e.POST("/password/reset", h.handleResetPassword)
	e.POST("/password/change", h.handleChangePassword)

	admin := e.Group("/admin", h.requireAdmin)
	admin.POST("/bans", h.handleCreateBan)
	admin.DELETE("/bans/:id", h.handleRevokeBan)
	admin.GET("/users/:id/bans", h.handleListBans)
	admin.POST("/users/:id/ownership", h.handleLinkOwnership)

	return e, nil
}
