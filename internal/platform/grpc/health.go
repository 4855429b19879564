package grpc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthCheckTimeout = time.Second
	initialBackoff     = 100 * time.Millisecond
	maxBackoff         = time.Second
)

// WaitForHealth blocks until the gRPC health check for service reports
// SERVING or the context ends. An empty service checks the whole server.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logger *zap.Logger) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	healthClient := grpc_health_v1.NewHealthClient(conn)
	backoff := initialBackoff
	for {
		callCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		response, err := healthClient.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && response.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			logger.Debug("gRPC health check is SERVING", zap.String("target", conn.Target()))
			return nil
		}
		if err != nil {
			logger.Debug("waiting for gRPC health", zap.String("target", conn.Target()), zap.Error(err))
		} else {
			logger.Debug("waiting for gRPC health",
				zap.String("target", conn.Target()),
				zap.Stringer("status", response.GetStatus()),
			)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}
}
