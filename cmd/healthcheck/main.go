// Package main probes the intelligence server health service and exits
// non-zero when it does not report SERVING in time.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	healthcheckcmd "github.com/ifeanyidike/cenphi-intelligence/internal/cmd/healthcheck"
	"github.com/ifeanyidike/cenphi-intelligence/internal/platform/config"
)

func main() {
	cfg, err := healthcheckcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := healthcheckcmd.Run(ctx, cfg); err != nil {
		stop()
		config.Exitf("healthcheck: %v", err)
	}
}
