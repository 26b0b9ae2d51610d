// Package types defines shared Go types used by both the agent and server.
// These are the canonical in-memory representations of a thermography
// reading, separate from the gRPC wire format in pkg/wire.
//
// errors.go holds the error taxonomy every other package wraps:
// ErrInvalidInput is surfaced to callers, ErrStorageUnavailable and
// ErrNetworkUnavailable are degraded locally and only logged.
package types
