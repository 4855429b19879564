// Package pool bounds how many gRPC handlers run at once.
package pool

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	apperrors "github.com/ifeanyidike/cenphi-intelligence/internal/platform/errors"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
)

// healthMethodPrefix identifies health probes, which never wait on a slot.
const healthMethodPrefix = "/grpc.health.v1.Health/"

// Observer receives pool events. Implementations must be safe for
// concurrent use.
type Observer interface {
	Acquired(method string)
	Released(method string, held time.Duration)
	Rejected(method string)
}

// Option configures a Pool.
type Option func(*Pool)

// WithAcquireTimeout caps how long a call waits for a free worker. Zero
// waits until the call's own context ends.
func WithAcquireTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.acquireTimeout = d
		}
	}
}

// WithObserver attaches an event observer.
func WithObserver(o Observer) Option {
	return func(p *Pool) {
		if o != nil {
			p.observer = o
		}
	}
}

// Pool is a fixed-size set of worker slots shared by all inbound calls.
type Pool struct {
	size           int
	sem            *semaphore.Weighted
	inFlight       atomic.Int64
	acquireTimeout time.Duration
	observer       Observer
}

// New creates a pool with size slots.
func New(size int, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, apperrors.WithMetadata(
			apperrors.CodeInvalidConfig,
			"worker pool size must be at least 1",
			map[string]string{"size": strconv.Itoa(size)},
		)
	}
	p := &Pool{
		size:     size,
		sem:      semaphore.NewWeighted(int64(size)),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Size returns the number of worker slots.
func (p *Pool) Size() int {
	return p.size
}

// InFlight returns the number of slots currently held.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Acquire takes a worker slot for method, waiting until one frees up, the
// acquire timeout elapses or ctx ends. The returned func releases the slot.
func (p *Pool) Acquire(ctx context.Context, method string) (func(), error) {
	waitCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		p.observer.Rejected(method)
		return nil, apperrors.WrapWithMetadata(
			apperrors.CodePoolExhausted,
			"worker pool exhausted",
			map[string]string{
				"method": method,
				"size":   strconv.Itoa(p.size),
			},
			err,
		)
	}

	p.inFlight.Add(1)
	p.observer.Acquired(method)
	start := time.Now()

	var released atomic.Bool
	return func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		p.inFlight.Add(-1)
		p.sem.Release(1)
		p.observer.Released(method, time.Since(start))
	}, nil
}

// UnaryServerInterceptor runs each unary handler inside a worker slot.
func (p *Pool) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if exempt(info.FullMethod) {
			return handler(ctx, req)
		}
		release, err := p.Acquire(ctx, info.FullMethod)
		if err != nil {
			return nil, apperrors.HandleError(err)
		}
		defer release()
		return handler(ctx, req)
	}
}

// StreamServerInterceptor holds a worker slot for the lifetime of a stream.
func (p *Pool) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if exempt(info.FullMethod) {
			return handler(srv, ss)
		}
		release, err := p.Acquire(ss.Context(), info.FullMethod)
		if err != nil {
			return apperrors.HandleError(err)
		}
		defer release()
		return handler(srv, ss)
	}
}

func exempt(method string) bool {
	return strings.HasPrefix(method, healthMethodPrefix)
}

type nopObserver struct{}

func (nopObserver) Acquired(string)                {}
func (nopObserver) Released(string, time.Duration) {}
func (nopObserver) Rejected(string)                {}
