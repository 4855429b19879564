// Package main wires the intelligence gRPC server process lifecycle.
//
// It reads config from env/flags and serves until SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	intelligencecmd "github.com/ifeanyidike/cenphi-intelligence/internal/cmd/intelligence"
)

func main() {
	cfg, err := intelligencecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[INTELLIGENCE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := intelligencecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
