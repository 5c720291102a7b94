package bridge

import "errors"

// Dispatch-time errors reach the caller through a rejected Future or a
// returned error. Router-time errors are only logged and counted.
var (
	ErrBoundaryUnavailable = errors.New("bridge: boundary unavailable")
	ErrUnknownResultType   = errors.New("bridge: unknown result type tag")
	ErrStaleOperation      = errors.New("bridge: unknown or stale operation id")
	ErrTagMismatch         = errors.New("bridge: result type tag mismatch")
	ErrDecodePayload       = errors.New("bridge: payload does not match result type")
	ErrMalformedEnvelope   = errors.New("bridge: malformed result envelope")
	ErrCancelled           = errors.New("bridge: operation cancelled")
	ErrTimeout             = errors.New("bridge: operation timed out")
	ErrRateLimited         = errors.New("bridge: capability rate limited")
	ErrIncompatibleHost    = errors.New("bridge: incompatible host bridge version")
	ErrPending             = errors.New("bridge: operation still pending")
	ErrDuplicateTag        = errors.New("bridge: result type tag already registered")
	ErrHostRejected        = errors.New("bridge: host rejected operation")
)
