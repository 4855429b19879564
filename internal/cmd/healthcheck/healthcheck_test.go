package healthcheck

import (
	"context"
	"flag"
	"io"
	"strings"
	"testing"
	"time"

	server "github.com/ifeanyidike/cenphi-intelligence/internal/services/intelligence/app"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != "localhost:50052" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.Timeout != 2*time.Second {
		t.Fatalf("expected default timeout 2s, got %v", cfg.Timeout)
	}
	if cfg.LogLevel != "warn" || cfg.LogFormat != "console" {
		t.Fatalf("unexpected log defaults %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("CENPHI_INTELLIGENCE_HEALTHCHECK_ADDR", "intelligence:50052")

	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-timeout", "500ms", "-service", "intelligence.v1.IntelligenceService"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != "intelligence:50052" {
		t.Fatalf("expected env addr, got %q", cfg.Addr)
	}
	if cfg.Timeout != 500*time.Millisecond {
		t.Fatalf("expected timeout override, got %v", cfg.Timeout)
	}
	if cfg.Service != "intelligence.v1.IntelligenceService" {
		t.Fatalf("expected service override, got %q", cfg.Service)
	}
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	for _, args := range [][]string{
		{"-timeout", "0s"},
		{"-timeout", "-1s"},
		{"-log-level", "loud"},
	} {
		fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		if _, err := ParseConfig(fs, args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func startServer(t *testing.T) string {
	t.Helper()
	srv, err := server.New(server.Options{Workers: 1})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.Close)
	if err := srv.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return srv.Addr()
}

func TestRunSucceedsAgainstServingServer(t *testing.T) {
	t.Setenv("CENPHI_INTELLIGENCE_OTEL_ENDPOINT", "")
	addr := startServer(t)

	err := Run(context.Background(), Config{Addr: addr, Timeout: 2 * time.Second, LogLevel: "error"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunRejectsBadLogFormat(t *testing.T) {
	err := Run(context.Background(), Config{Addr: "127.0.0.1:1", Timeout: time.Second, LogFormat: "xml"})
	if err == nil {
		t.Fatal("expected logger error")
	}
}

func TestProbeLogsServingServer(t *testing.T) {
	addr := startServer(t)
	core, logs := observer.New(zapcore.DebugLevel)

	err := probe(context.Background(), Config{Addr: addr, Timeout: 2 * time.Second}, zap.New(core))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	served := logs.FilterMessage("server is serving").All()
	if len(served) != 1 {
		t.Fatalf("expected serving event, got %d", len(served))
	}
	if served[0].ContextMap()["addr"] != addr {
		t.Fatalf("unexpected addr field: %v", served[0].ContextMap())
	}
}

func TestRunFailsForUnknownService(t *testing.T) {
	addr := startServer(t)

	err := Run(context.Background(), Config{Addr: addr, Timeout: 300 * time.Millisecond, Service: "missing.v1.Service", LogLevel: "error"})
	if err == nil {
		t.Fatal("expected probe failure for unknown service")
	}
}

func TestRunFailsWhenNothingListens(t *testing.T) {
	err := Run(context.Background(), Config{Addr: "127.0.0.1:1", Timeout: 300 * time.Millisecond, LogLevel: "error"})
	if err == nil {
		t.Fatal("expected probe failure")
	}
	if !strings.Contains(err.Error(), "intelligence gRPC") {
		t.Fatalf("expected service-labeled error, got %v", err)
	}
}
