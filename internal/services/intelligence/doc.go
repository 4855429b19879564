// Package intelligence hosts the cenphi intelligence gRPC server: a
// lifecycle-managed listener with a bounded worker pool, an injectable model
// loader and Prometheus metrics. No inference service is registered yet, so
// every application method answers UNIMPLEMENTED.
package intelligence
