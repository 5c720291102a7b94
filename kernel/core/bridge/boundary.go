package bridge

import "context"

// Boundary is the real path: a fire-and-forget channel to the host whose
// answers come back later through Router.OnResult.
type Boundary interface {
	// Available reports whether the host side is reachable right now.
	Available() bool
	// Invoke hands req to the host. A non-nil error means the request
	// never left; no result will arrive for it.
	Invoke(ctx context.Context, req Request) error
	// Cancel tells the host to stop emitting for a stream operation.
	Cancel(ctx context.Context, capability, operationID string) error
}

// Versioned is implemented by boundaries that can report the host bridge
// version.
type Versioned interface {
	HostVersion() string
}

// Responder is the local path: canned answers produced in-process without
// touching the pending-operation table.
type Responder interface {
	// Respond returns the serialized result payload for a one-shot or
	// fire-only request.
	Respond(ctx context.Context, req Request) (string, error)
	// RespondStream emits serialized payloads until stop is called.
	RespondStream(ctx context.Context, req Request, emit func(payload string)) (stop func(), err error)
}
