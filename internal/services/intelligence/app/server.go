// Package server wires the intelligence gRPC listener lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/ifeanyidike/cenphi-intelligence/internal/platform/errors"
	"github.com/ifeanyidike/cenphi-intelligence/internal/platform/timeouts"
	"github.com/ifeanyidike/cenphi-intelligence/internal/services/intelligence/metrics"
	"github.com/ifeanyidike/cenphi-intelligence/internal/services/intelligence/model"
	"github.com/ifeanyidike/cenphi-intelligence/internal/services/intelligence/pool"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Defaults for the observed deployment.
const (
	DefaultHost    = "::"
	DefaultPort    = 50052
	DefaultWorkers = 10
)

// Options configures a Server.
type Options struct {
	// Workers bounds how many calls are handled at once.
	Workers int
	// ShutdownTimeout bounds the graceful drain. Zero uses timeouts.Drain.
	ShutdownTimeout time.Duration
	// AcquireTimeout caps the wait for a worker slot. Zero waits for the
	// call deadline.
	AcquireTimeout time.Duration
	// Loader loads the tokenizer and model on Start. Nil disables loading.
	Loader model.Loader
	// Logger receives lifecycle events. Nil discards them.
	Logger *zap.Logger
	// Metrics receives pool and lifecycle metrics when set.
	Metrics *metrics.Registry
	// DisableHealth skips registering the gRPC health service.
	DisableHealth bool
	// ServerOptions are appended to the gRPC server options.
	ServerOptions []grpc.ServerOption
}

// Server hosts the intelligence gRPC listener.
type Server struct {
	mu       sync.Mutex
	state    atomic.Int32
	starting bool
	waiting  bool

	logger          *zap.Logger
	metrics         *metrics.Registry
	loader          model.Loader
	shutdownTimeout time.Duration

	pool       *pool.Pool
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener

	tokenizer model.Tokenizer
	model     model.Model

	serveErr  chan error
	stopCh    chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// New builds an unbound server whose calls run on a pool of opts.Workers
// workers. No application service is registered, so every method other than
// health answers UNIMPLEMENTED.
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	poolOpts := []pool.Option{pool.WithAcquireTimeout(opts.AcquireTimeout)}
	if opts.Metrics != nil {
		poolOpts = append(poolOpts, pool.WithObserver(opts.Metrics))
	}
	workers, err := pool.New(opts.Workers, poolOpts...)
	if err != nil {
		return nil, err
	}

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = timeouts.Drain
	}

	serverOpts := []grpc.ServerOption{
		grpc.NumStreamWorkers(uint32(workers.Size())),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(workers.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(workers.StreamServerInterceptor()),
	}
	serverOpts = append(serverOpts, opts.ServerOptions...)
	grpcServer := grpc.NewServer(serverOpts...)

	var healthServer *health.Server
	if !opts.DisableHealth {
		healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}

	s := &Server{
		logger:          logger,
		metrics:         opts.Metrics,
		loader:          opts.Loader,
		shutdownTimeout: shutdownTimeout,
		pool:            workers,
		grpcServer:      grpcServer,
		health:          healthServer,
		serveErr:        make(chan error, 1),
		stopCh:          make(chan struct{}),
	}
	if s.metrics != nil {
		s.metrics.SetPoolSize(workers.Size())
	}
	s.setState(StateUninitialized)
	s.logger.Info("server initialized", zap.Int("workers", workers.Size()), zap.Stringer("state", s.State()))
	return s, nil
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound listener address, or "" before Bind.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Bind attaches an insecure TCP listener on host:port. Port 0 picks an
// ephemeral port. Host may be bracketed, as in "[::]".
func (s *Server) Bind(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.State(); state != StateUninitialized {
		return invalidState("bind", state)
	}

	addr := JoinHostPort(host, port)
	if port < 0 || port > 65535 {
		return apperrors.WithMetadata(
			apperrors.CodeBindFailed,
			fmt.Sprintf("invalid port %d", port),
			map[string]string{"addr": addr},
		)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return apperrors.WrapWithMetadata(
			apperrors.CodeBindFailed,
			fmt.Sprintf("listen on %s", addr),
			map[string]string{"addr": addr},
			err,
		)
	}
	s.listener = listener
	s.setState(StateBound)
	s.logger.Info("server bound", zap.String("addr", listener.Addr().String()), zap.Stringer("state", StateBound))
	return nil
}

// Start loads the model, if a loader is configured, and begins accepting
// connections. A second Start while listening, or while the first is still
// loading, returns ALREADY_STARTED. The lock is not held during the load, so
// Addr, Model and Close stay responsive.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	switch state := s.State(); {
	case state == StateListening:
		s.mu.Unlock()
		return apperrors.New(apperrors.CodeAlreadyStarted, "server already started")
	case state == StateBound && s.starting:
		s.mu.Unlock()
		return apperrors.New(apperrors.CodeAlreadyStarted, "server start in progress")
	case state != StateBound:
		s.mu.Unlock()
		return invalidState("start", state)
	}
	s.starting = true
	s.mu.Unlock()

	tokenizer, mdl, err := s.loadModel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = false
	if err != nil {
		return err
	}
	// Close may have run while the model loaded.
	if state := s.State(); state != StateBound {
		return invalidState("start", state)
	}
	s.tokenizer = tokenizer
	s.model = mdl

	if s.health != nil {
		s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	}
	listener := s.listener
	go func() {
		s.serveErr <- s.grpcServer.Serve(listener)
	}()
	s.setState(StateListening)

	s.logger.Info("server started", zap.Stringer("state", StateListening))
	s.logger.Info("server listening", zap.String("addr", listener.Addr().String()))
	return nil
}

func (s *Server) loadModel(ctx context.Context) (model.Tokenizer, model.Model, error) {
	if s.loader == nil {
		s.logger.Info("model loading disabled")
		return nil, nil, nil
	}

	s.logger.Info("loading model")
	start := time.Now()
	tokenizer, mdl, err := s.loader.Load(ctx)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.CodeModelLoadFailed) {
			err = apperrors.Wrap(apperrors.CodeModelLoadFailed, "load model", err)
		}
		s.logger.Error("model load failed", zap.Error(err))
		return nil, nil, err
	}

	fields := []zap.Field{zap.Duration("elapsed", time.Since(start))}
	if mdl != nil {
		fields = append(fields, zap.String("model", mdl.Name()))
		if p, ok := mdl.(pather); ok {
			fields = append(fields, zap.String("model_path", p.Path()))
		}
	}
	if tokenizer != nil {
		fields = append(fields, zap.String("tokenizer", tokenizer.Name()))
		if p, ok := tokenizer.(pather); ok {
			fields = append(fields, zap.String("tokenizer_path", p.Path()))
		}
	}
	s.logger.Info("model loaded", fields...)
	return tokenizer, mdl, nil
}

// pather is implemented by handles resolved from files, such as
// model.Handle.
type pather interface {
	Path() string
}

// Model returns the loaded model, or nil when loading is disabled or has
// not run.
func (s *Server) Model() model.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Tokenizer returns the loaded tokenizer, or nil.
func (s *Server) Tokenizer() model.Tokenizer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenizer
}

// Stop asks a running WaitForTermination to drain and return. It is safe to
// call more than once and from any goroutine.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stop requested")
		close(s.stopCh)
	})
}

// WaitForTermination blocks until ctx ends, Stop is called or the serve loop
// fails, then drains in-flight calls. It returns nil after a clean drain and
// a SHUTDOWN_FAILED error when the drain deadline forced a hard stop.
func (s *Server) WaitForTermination(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if state := s.State(); state != StateListening || s.waiting {
		s.mu.Unlock()
		return invalidState("wait for termination", state)
	}
	s.waiting = true
	s.mu.Unlock()

	var (
		reason   string
		serveErr error
		served   bool
	)
	select {
	case <-ctx.Done():
		reason = "context done"
	case <-s.stopCh:
		reason = "stop requested"
	case serveErr = <-s.serveErr:
		reason = "serve returned"
		served = true
	}

	s.logger.Info("server draining", zap.String("reason", reason), zap.Int("in_flight", s.pool.InFlight()))
	shutdownErr := s.drain()
	if !served {
		serveErr = <-s.serveErr
	}
	s.closeListener()
	s.setState(StateTerminated)
	s.logger.Info("server terminated", zap.Stringer("state", StateTerminated))

	if serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", serveErr)
	}
	return shutdownErr
}

// drain stops accepting calls and waits for in-flight ones up to the
// shutdown timeout before stopping hard.
func (s *Server) drain() error {
	if s.health != nil {
		s.health.Shutdown()
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()
	select {
	case <-stopped:
		return nil
	case <-timer.C:
		s.logger.Warn("drain deadline exceeded, stopping hard",
			zap.Duration("timeout", s.shutdownTimeout),
			zap.Int("in_flight", s.pool.InFlight()),
		)
		s.grpcServer.Stop()
		<-stopped
		return apperrors.WrapWithMetadata(
			apperrors.CodeShutdownFailed,
			"drain in-flight calls",
			map[string]string{"timeout": s.shutdownTimeout.String()},
			context.DeadlineExceeded,
		)
	}
}

// Serve starts the server and blocks until it terminates. A Start rejected
// for the server's state leaves the server untouched; any other failure or
// the end of the wait closes it.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}

	if err := s.Start(ctx); err != nil {
		if apperrors.IsCode(err, apperrors.CodeAlreadyStarted) || apperrors.IsCode(err, apperrors.CodeInvalidState) {
			return err
		}
		s.Close()
		return err
	}
	defer s.Close()
	return s.WaitForTermination(ctx)
}

// Close releases server resources without draining. It is safe to call at
// any state and more than once.
func (s *Server) Close() {
	if s == nil {
		return
	}

	s.closeOnce.Do(func() {
		if s.health != nil {
			s.health.Shutdown()
		}
		if s.grpcServer != nil {
			s.grpcServer.Stop()
		}
		s.closeListener()
		if s.State() != StateTerminated {
			s.setState(StateTerminated)
			s.logger.Info("server closed", zap.Stringer("state", StateTerminated))
		}
	})
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("close listener", zap.Error(err))
	}
}

func (s *Server) setState(state State) {
	s.state.Store(int32(state))
	if s.metrics != nil {
		s.metrics.SetState(int(state))
	}
}

func invalidState(op string, state State) error {
	return apperrors.WithMetadata(
		apperrors.CodeInvalidState,
		fmt.Sprintf("cannot %s in state %s", op, state),
		map[string]string{"state": state.String()},
	)
}

// JoinHostPort builds a listen address, accepting bracketed IPv6 hosts.
func JoinHostPort(host string, port int) string {
	host = strings.TrimSpace(host)
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(port))
}
