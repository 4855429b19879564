package server

import "context"

// Config is the full startup configuration for Run.
type Config struct {
	Host string
	Port int
	Options
}

// Run initializes, binds, starts and serves a server until ctx ends or the
// server is stopped.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg.Options)
	if err != nil {
		return err
	}
	if err := server.Bind(cfg.Host, cfg.Port); err != nil {
		server.Close()
		return err
	}
	return server.Serve(ctx)
}
