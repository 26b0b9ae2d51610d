package types

import "errors"

// Error taxonomy. Wrap with fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	// ErrInvalidInput marks an empty, short or non-finite temperature sequence
	// or a malformed request. It is the only class returned to callers as a failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorageUnavailable marks a durable store read or write that failed.
	// Callers fall back to empty history on read and in-memory state on write.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNetworkUnavailable marks an unreachable remote collaborator.
	ErrNetworkUnavailable = errors.New("network unavailable")
)
