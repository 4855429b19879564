// Package errors provides structured domain errors for the intelligence
// server and their mapping onto gRPC status codes.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Configuration errors
	CodeInvalidConfig Code = "INVALID_CONFIG"

	// Lifecycle errors
	CodeBindFailed     Code = "BIND_FAILED"
	CodeAlreadyStarted Code = "ALREADY_STARTED"
	CodeInvalidState   Code = "INVALID_STATE"
	CodeShutdownFailed Code = "SHUTDOWN_FAILED"

	// Worker pool errors
	CodePoolExhausted Code = "POOL_EXHAUSTED"

	// Model errors
	CodeModelLoadFailed Code = "MODEL_LOAD_FAILED"
)

// GRPCCode maps a domain error code to the appropriate gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidConfig:
		return codes.InvalidArgument

	// FailedPrecondition - operation not allowed in current state
	case CodeAlreadyStarted, CodeInvalidState:
		return codes.FailedPrecondition

	// ResourceExhausted - worker capacity
	case CodePoolExhausted:
		return codes.ResourceExhausted

	// Unavailable - the server cannot take traffic
	case CodeBindFailed, CodeModelLoadFailed:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
