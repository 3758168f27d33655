package authgate

import (
	"context"
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("authgate", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Server.GRPCAddr != ":8083" {
		t.Fatalf("expected default grpc addr, got %q", cfg.Server.GRPCAddr)
	}
	if cfg.Server.HTTPAddr != ":8084" {
		t.Fatalf("expected default http addr, got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Server.Throttle.AttemptThreshold != 10 || cfg.Server.Throttle.AccountThreshold != 5 {
		t.Fatalf("unexpected throttle defaults: %+v", cfg.Server.Throttle)
	}
	if cfg.Server.Login.MissedBanNotice {
		t.Fatal("expected missed ban notice off by default")
	}
	if cfg.Healthcheck {
		t.Fatal("expected healthcheck off by default")
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("AUTHGATE_HTTP_ADDR", "env-http:1")
	t.Setenv("AUTHGATE_DB_PATH", "env.db")
	t.Setenv("AUTHGATE_FAILED_LOGIN_ATTEMPT_THRESHOLD", "3")
	t.Setenv("AUTHGATE_MISSED_BAN_NOTICE", "true")

	fs := flag.NewFlagSet("authgate", flag.ContinueOnError)
	args := []string{"-http-addr", "flag-http:2", "-grpc-addr", "127.0.0.1:9000", "-healthcheck"}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Server.HTTPAddr != "flag-http:2" {
		t.Fatalf("expected flag http addr, got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Server.GRPCAddr != "127.0.0.1:9000" {
		t.Fatalf("expected flag grpc addr, got %q", cfg.Server.GRPCAddr)
	}
	if cfg.Server.DBPath != "env.db" {
		t.Fatalf("expected env db path, got %q", cfg.Server.DBPath)
	}
	if cfg.Server.Throttle.AttemptThreshold != 3 {
		t.Fatalf("expected env attempt threshold, got %d", cfg.Server.Throttle.AttemptThreshold)
	}
	if !cfg.Server.Login.MissedBanNotice || !cfg.Healthcheck {
		t.Fatalf("expected toggles on, got %+v", cfg)
	}
}

func TestParseConfigRejectsUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("authgate", flag.ContinueOnError)
	fs.SetOutput(discard{})
	if _, err := ParseConfig(fs, []string{"-nope"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestProbeAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: ":8083", want: "127.0.0.1:8083"},
		{in: "0.0.0.0:8083", want: "127.0.0.1:8083"},
		{in: "[::]:8083", want: "127.0.0.1:8083"},
		{in: "10.0.0.5:9000", want: "10.0.0.5:9000"},
		{in: "not-an-addr", want: "not-an-addr"},
	}
	for _, tt := range tests {
		if got := probeAddr(tt.in); got != tt.want {
			t.Fatalf("probeAddr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunHealthcheckFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	cfg := Config{Healthcheck: true}
	cfg.Logging.Level = "error"
	cfg.Server.GRPCAddr = "127.0.0.1:1"
	if err := Run(ctx, cfg); err == nil {
		t.Fatal("expected healthcheck error")
	}
}

func TestRunRejectsBadLogLevel(t *testing.T) {
	cfg := Config{}
	cfg.Logging.Level = "loud"
	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected log level error")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
