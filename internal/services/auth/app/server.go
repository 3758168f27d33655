package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/authgate/internal/platform/timeouts"
	"github.com/louisbranch/authgate/internal/services/auth/account"
	"github.com/louisbranch/authgate/internal/services/auth/api/httpapi"
	"github.com/louisbranch/authgate/internal/services/auth/attempt"
	"github.com/louisbranch/authgate/internal/services/auth/login"
	"github.com/louisbranch/authgate/internal/services/auth/oauth"
	"github.com/louisbranch/authgate/internal/services/auth/password"
	redisledger "github.com/louisbranch/authgate/internal/services/auth/storage/redis"
	authsqlite "github.com/louisbranch/authgate/internal/services/auth/storage/sqlite"
	"github.com/louisbranch/authgate/internal/services/auth/throttle"
)

// HealthService is the gRPC health service name reported while serving.
const HealthService = "authgate.Login"

// Config holds every runtime setting of the process.
type Config struct {
	GRPCAddr   string `env:"AUTHGATE_GRPC_ADDR"    envDefault:":8083"`
	HTTPAddr   string `env:"AUTHGATE_HTTP_ADDR"    envDefault:":8084"`
	DBPath     string `env:"AUTHGATE_DB_PATH"      envDefault:"data/authgate.db"`
	BcryptCost int    `env:"AUTHGATE_BCRYPT_COST"  envDefault:"10"`

	Throttle throttle.Config
	Login    login.Config
	OAuth    oauth.Config
	Account  account.Config
	HTTP     httpapi.Config
	Redis    redisledger.Config
}

// Server hosts the HTTP login surface and the gRPC health endpoint.
type Server struct {
	logger       *zap.Logger
	listener     net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
	httpListener net.Listener
	httpServer   *http.Server
	store        *authsqlite.Store
	redis        *goredis.Client
}

// New opens storage and wires every component. Listeners are bound before
// New returns.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Throttle.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		if err := cfg.Redis.Validate(cfg.Throttle.Window()); err != nil {
			return nil, err
		}
	}
	s := &Server{logger: logger}
	if err := s.wire(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) wire(ctx context.Context, cfg Config) error {
	store, err := openAuthStore(cfg.DBPath)
	if err != nil {
		return err
	}
	s.store = store

	var ledger attempt.Ledger = store
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		client, err := redisledger.Dial(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		s.redis = client
		ledger = redisledger.NewLedger(client, cfg.Redis)
		s.logger.Info("attempt ledger on redis", zap.String("addr", cfg.Redis.Addr))
	}

	hasher, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return err
	}
	policy, err := throttle.NewPolicy(cfg.Throttle, ledger)
	if err != nil {
		return err
	}
	engine, err := login.NewEngine(cfg.Login, login.Deps{
		Users:     store,
		Bans:      store,
		Ownership: store,
		Ledger:    ledger,
		Throttle:  policy,
		Hasher:    hasher,
		Logger:    s.logger.Named("login"),
	})
	if err != nil {
		return fmt.Errorf("build login engine: %w", err)
	}
	hydra, err := oauth.NewAdminClient(ctx, cfg.OAuth)
	if err != nil {
		return fmt.Errorf("build authorization server client: %w", err)
	}
	bridge, err := oauth.NewBridge(cfg.OAuth, hydra, engine, store, s.logger.Named("oauth"))
	if err != nil {
		return err
	}
	accounts, err := account.NewService(cfg.Account, account.Deps{
		Users:     store,
		Bans:      store,
		Ownership: store,
		Hasher:    hasher,
		Logger:    s.logger.Named("account"),
	})
	if err != nil {
		return fmt.Errorf("build account service: %w", err)
	}
	e, err := httpapi.New(cfg.HTTP, bridge, engine, accounts, s.logger.Named("http"))
	if err != nil {
		return err
	}

	s.httpListener, err = net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}
	s.httpServer = &http.Server{Handler: e, ReadHeaderTimeout: timeouts.ReadHeader}

	s.listener, err = net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on grpc addr %s: %w", cfg.GRPCAddr, err)
	}
	s.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)
	return nil
}

// Addr returns the gRPC listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// HTTPAddr returns the HTTP listener address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Run creates and serves a server until ctx ends.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	s, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve blocks until ctx ends or either listener fails.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	s.logger.Info("grpc listening", zap.String("addr", s.Addr()))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	s.logger.Info("http listening", zap.String("addr", s.HTTPAddr()))
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
	shutdownGRPC := func() {
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}
	shutdownHTTP := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
	}

	select {
	case <-ctx.Done():
		shutdownHTTP()
		shutdownGRPC()
		return handleErr(<-serveErr)
	case err := <-serveErr:
		shutdownHTTP()
		return handleErr(err)
	case err := <-httpErr:
		shutdownGRPC()
		if handled := handleErr(<-serveErr); handled != nil {
			return handled
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// Close releases listeners and storage. It is safe to call more than once.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	} else if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			s.logger.Warn("close redis", zap.Error(err))
		}
		s.redis = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("close auth store", zap.Error(err))
		}
		s.store = nil
	}
}

func openAuthStore(path string) (*authsqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "authgate.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := authsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open auth sqlite store: %w", err)
	}
	return store, nil
}
