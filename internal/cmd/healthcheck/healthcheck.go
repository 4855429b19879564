// Package healthcheck probes a running intelligence server through the gRPC
// health service, for container and orchestrator readiness checks.
package healthcheck

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/ifeanyidike/cenphi-intelligence/internal/platform/discovery"
	platformcmd "github.com/ifeanyidike/cenphi-intelligence/internal/platform/cmd"
	platformgrpc "github.com/ifeanyidike/cenphi-intelligence/internal/platform/grpc"
	"github.com/ifeanyidike/cenphi-intelligence/internal/platform/logging"
	"github.com/ifeanyidike/cenphi-intelligence/internal/platform/timeouts"
	"go.uber.org/zap"
)

// Config holds healthcheck command configuration.
type Config struct {
	Addr      string        `env:"CENPHI_INTELLIGENCE_HEALTHCHECK_ADDR"`
	Timeout   time.Duration `env:"CENPHI_INTELLIGENCE_HEALTHCHECK_TIMEOUT" envDefault:"2s"`
	Service   string        `env:"CENPHI_INTELLIGENCE_HEALTHCHECK_SERVICE"`
	LogLevel  string        `env:"CENPHI_INTELLIGENCE_LOG_LEVEL" envDefault:"warn"`
	LogFormat string        `env:"CENPHI_INTELLIGENCE_LOG_FORMAT" envDefault:"console"`
}

// Validate resolves the default address and rejects configurations the
// probe cannot run with.
func (c *Config) Validate() error {
	c.Addr = discovery.OrLocalGRPCAddr(c.Addr, discovery.ServiceIntelligence)
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("address is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfigFromArgs(&cfg, fs, args, bindFlags); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The intelligence server address (empty probes the local default port)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Maximum time to wait for SERVING")
	fs.StringVar(&cfg.Service, "service", cfg.Service, "Health service name (empty checks the whole server)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or console")
}

// Run dials the server with tracing configured and returns nil once it
// reports SERVING.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: platformcmd.ServiceHealthcheck,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return platformcmd.RunWithTelemetryAndOptions(ctx, platformcmd.ServiceHealthcheck, platformcmd.RunOptions{Logger: logger}, func(ctx context.Context) error {
		return probe(ctx, cfg, logger)
	})
}

func probe(ctx context.Context, cfg Config, logger *zap.Logger) error {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = timeouts.GRPCDial
	}
	conn, err := platformgrpc.DialWithHealth(ctx, nil, cfg.Addr, cfg.Service, timeout, logger)
	if err != nil {
		return platformgrpc.NormalizeDialError(discovery.ServiceIntelligence, cfg.Addr, err)
	}
	defer conn.Close()
	logger.Info("server is serving", zap.String("addr", cfg.Addr), zap.String("service", cfg.Service))
	return nil
}
