// Package intelligence parses intelligence command flags and launches the
// gRPC server together with its optional metrics endpoint.
package intelligence

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	platformcmd "github.com/ifeanyidike/cenphi-intelligence/internal/platform/cmd"
	"github.com/ifeanyidike/cenphi-intelligence/internal/platform/logging"
	"github.com/ifeanyidike/cenphi-intelligence/internal/platform/timeouts"
	server "github.com/ifeanyidike/cenphi-intelligence/internal/services/intelligence/app"
	"github.com/ifeanyidike/cenphi-intelligence/internal/services/intelligence/metrics"
	"github.com/ifeanyidike/cenphi-intelligence/internal/services/intelligence/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds intelligence command configuration.
type Config struct {
	Host            string        `env:"CENPHI_INTELLIGENCE_HOST"`
	Port            int           `env:"CENPHI_INTELLIGENCE_PORT"`
	Workers         int           `env:"CENPHI_INTELLIGENCE_WORKERS"`
	ShutdownTimeout time.Duration `env:"CENPHI_INTELLIGENCE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AcquireTimeout  time.Duration `env:"CENPHI_INTELLIGENCE_ACQUIRE_TIMEOUT" envDefault:"0s"`
	ModelDir        string        `env:"CENPHI_INTELLIGENCE_MODEL_DIR"`
	MetricsAddr     string        `env:"CENPHI_INTELLIGENCE_METRICS_ADDR"`
	Health          bool          `env:"CENPHI_INTELLIGENCE_HEALTH" envDefault:"true"`
	LogLevel        string        `env:"CENPHI_INTELLIGENCE_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"CENPHI_INTELLIGENCE_LOG_FORMAT" envDefault:"json"`
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in [0, 65535], got %d", c.Port)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must not be negative, got %s", c.ShutdownTimeout)
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("acquire timeout must not be negative, got %s", c.AcquireTimeout)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseConfig parses environment and flags into a Config. Host, port and
// workers start from the server defaults.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{
		Host:    server.DefaultHost,
		Port:    server.DefaultPort,
		Workers: server.DefaultWorkers,
	}
	if err := platformcmd.ParseConfigFromArgs(&cfg, fs, args, bindFlags); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Host, "host", cfg.Host, "The gRPC listen host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The gRPC server port")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Maximum concurrently executing calls")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Drain window for in-flight calls on shutdown")
	fs.DurationVar(&cfg.AcquireTimeout, "acquire-timeout", cfg.AcquireTimeout, "Maximum wait for a free worker (0 waits for the call deadline)")
	fs.StringVar(&cfg.ModelDir, "model-dir", cfg.ModelDir, "Model directory with config.json and tokenizer.json (empty disables loading)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (empty disables)")
	fs.BoolVar(&cfg.Health, "health", cfg.Health, "Register the gRPC health service; its methods answer instead of UNIMPLEMENTED (false leaves every method UNIMPLEMENTED)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or console")
}

// Run starts the intelligence server and, when configured, the metrics
// endpoint, and blocks until ctx ends or either fails.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: platformcmd.ServiceIntelligence,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return platformcmd.RunWithTelemetryAndOptions(ctx, platformcmd.ServiceIntelligence, platformcmd.RunOptions{Logger: logger}, func(ctx context.Context) error {
		return run(ctx, cfg, logger)
	})
}

func run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var loader model.Loader
	if dir := strings.TrimSpace(cfg.ModelDir); dir != "" {
		loader = model.DirLoader{Dir: dir}
	}

	g, gctx := errgroup.WithContext(ctx)
	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen metrics on %s: %w", addr, err)
		}
		g.Go(func() error {
			return serveMetrics(gctx, listener, reg, logger)
		})
	}
	g.Go(func() error {
		return server.Run(gctx, server.Config{
			Host: cfg.Host,
			Port: cfg.Port,
			Options: server.Options{
				Workers:         cfg.Workers,
				ShutdownTimeout: cfg.ShutdownTimeout,
				AcquireTimeout:  cfg.AcquireTimeout,
				Loader:          loader,
				Logger:          logger,
				Metrics:         m,
				DisableHealth:   !cfg.Health,
			},
		})
	})
	return g.Wait()
}

func serveMetrics(ctx context.Context, listener net.Listener, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	logger.Info("metrics listening", zap.String("addr", listener.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	}
}
