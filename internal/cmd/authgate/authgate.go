// Package authgate parses authgate flags and launches the service.
package authgate

import (
	"context"
	"flag"
	"net"
	"time"

	entrypoint "github.com/louisbranch/authgate/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/authgate/internal/platform/grpc"
	"github.com/louisbranch/authgate/internal/platform/logging"
	"github.com/louisbranch/authgate/internal/platform/otel"
	server "github.com/louisbranch/authgate/internal/services/auth/app"
	"go.uber.org/zap"
)

const healthcheckTimeout = 5 * time.Second

// Config holds authgate command configuration.
type Config struct {
	Server    server.Config
	Logging   logging.Config
	Telemetry otel.Config
	// Healthcheck probes a running instance instead of serving.
	Healthcheck bool
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Server.GRPCAddr, "grpc-addr", cfg.Server.GRPCAddr, "The gRPC health server address")
	fs.StringVar(&cfg.Server.HTTPAddr, "http-addr", cfg.Server.HTTPAddr, "The login HTTP server address")
	fs.StringVar(&cfg.Server.DBPath, "db-path", cfg.Server.DBPath, "The SQLite database path")
	fs.BoolVar(&cfg.Healthcheck, "healthcheck", false, "Probe the gRPC health endpoint and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts authgate, or probes a running instance when Healthcheck is set.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(entrypoint.ServiceAuthgate, cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Healthcheck {
		probeCtx, cancel := context.WithTimeout(ctx, healthcheckTimeout)
		defer cancel()
		return platformgrpc.Probe(probeCtx, probeAddr(cfg.Server.GRPCAddr), server.HealthService, logger)
	}

	options := entrypoint.RunOptions{Telemetry: cfg.Telemetry, Logger: logger}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAuthgate, options, func(ctx context.Context) error {
		logger.Info("starting", zap.String("grpc_addr", cfg.Server.GRPCAddr), zap.String("http_addr", cfg.Server.HTTPAddr))
		return server.Run(ctx, cfg.Server, logger)
	})
}

// probeAddr turns a listen address such as ":8083" into a dialable one.
func probeAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
