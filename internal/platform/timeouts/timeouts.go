// Package timeouts defines shared timeout constants used across the
// intelligence processes.
package timeouts

import "time"

// GRPCDial caps the wait for a gRPC peer to report SERVING.
const GRPCDial = 2 * time.Second

// ReadHeader limits how long the metrics HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the metrics HTTP server waits for in-flight
// requests during graceful shutdown.
const Shutdown = 5 * time.Second

// Drain is the default window for in-flight gRPC calls to finish before
// the server is stopped hard.
const Drain = 10 * time.Second
