// Package grpc holds client-side helpers for reaching gRPC servers.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dialer creates a client connection for a target.
type Dialer interface {
	Dial(target string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error)
}

// DialerFunc adapts a dial function to the Dialer interface.
type DialerFunc func(target string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error)

// Dial implements Dialer for DialerFunc.
func (fn DialerFunc) Dial(target string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	return fn(target, opts...)
}

// DialStage describes where a dial attempt failed.
type DialStage string

const (
	// DialStageConnect indicates a dial connection failure.
	DialStageConnect DialStage = "connect"
	// DialStageHealth indicates the health check failed.
	DialStageHealth DialStage = "health"
)

// DialError wraps dial and health check failures with a stage indicator.
type DialError struct {
	Stage DialStage
	Err   error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	if e == nil {
		return "gRPC dial error"
	}
	return fmt.Sprintf("gRPC %s error: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DefaultClientDialOptions returns dial options for the insecure transport
// the intelligence server listens on, with OTel client instrumentation.
func DefaultClientDialOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// DialWithHealth creates a client for target and waits until service
// reports SERVING. The health wait is bounded by timeout when positive.
// The connection is closed if the health check fails.
func DialWithHealth(ctx context.Context, dialer Dialer, target, service string, timeout time.Duration, logger *zap.Logger, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if dialer == nil {
		dialer = DialerFunc(gogrpc.NewClient)
	}
	if len(opts) == 0 {
		opts = DefaultClientDialOptions()
	}

	conn, err := dialer.Dial(target, opts...)
	if err != nil {
		return nil, &DialError{Stage: DialStageConnect, Err: err}
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := WaitForHealth(waitCtx, conn, service, logger); err != nil {
		_ = conn.Close()
		return nil, &DialError{Stage: DialStageHealth, Err: err}
	}
	return conn, nil
}

// NormalizeDialError maps DialError stages into stable, service-labeled
// messages for startup and probe callers.
func NormalizeDialError(serviceLabel, addr string, err error) error {
	var dialErr *DialError
	if errors.As(err, &dialErr) {
		if dialErr.Stage == DialStageHealth {
			return fmt.Errorf("%s gRPC health check failed for %s: %w", serviceLabel, addr, dialErr.Err)
		}
		return fmt.Errorf("dial %s gRPC %s: %w", serviceLabel, addr, dialErr.Err)
	}
	return fmt.Errorf("dial %s gRPC %s: %w", serviceLabel, addr, err)
}
