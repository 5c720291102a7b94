package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
)

// Frame types exchanged with a devhost.
const (
	FrameHello  = "hello"
	FrameInvoke = "invoke"
	FrameCancel = "cancel"
	FrameResult = "result"
	FrameError  = "error"
)

// Frame is one websocket message between the bridge and a devhost. Results
// carry the envelope exactly as a browser host would hand it to
// __aitOnResult.
type Frame struct {
	Type        string          `json:"type"`
	Version     string          `json:"version,omitempty"`
	Request     *bridge.Request `json:"request,omitempty"`
	Capability  string          `json:"capability,omitempty"`
	OperationID string          `json:"operationId,omitempty"`
	Envelope    string          `json:"envelope,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// ErrMalformedFrame marks a message that arrived intact but does not decode
// as a frame. The connection itself is still usable.
var ErrMalformedFrame = errors.New("transport: malformed frame")

// ParseFrame decodes a frame and checks it has a type. Failures wrap
// ErrMalformedFrame.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return f, nil
}

// Channel is a framed bidirectional message stream.
type Channel interface {
	Send(f Frame) error
	// Receive blocks for the next frame. An error wrapping ErrMalformedFrame
	// means one bad message was skipped; any other error ends the stream.
	Receive() (Frame, error)
	Close() error
	IsConnected() bool
}
