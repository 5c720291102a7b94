package bridge

import (
	"encoding/json"
	"fmt"
)

// Request is what a dispatcher hands the boundary: the capability options
// augmented with the operation id and the declared result type tag.
// Fire-only capabilities carry neither.
type Request struct {
	Capability    string          `json:"capability"`
	OperationID   string          `json:"operationId,omitempty"`
	ResultTypeTag string          `json:"resultTypeTag,omitempty"`
	Options       json.RawMessage `json:"options,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
}

// Marshal serializes the request to the string passed across the boundary.
func (r Request) Marshal() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal %s request: %w", r.Capability, err)
	}
	return string(b), nil
}

// ParseRequest is the host-side inverse of Marshal.
func ParseRequest(raw string) (Request, error) {
	var r Request
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Request{}, fmt.Errorf("parse request: %w", err)
	}
	if r.Capability == "" {
		return Request{}, fmt.Errorf("parse request: missing capability")
	}
	return r, nil
}

// DecodeOptions unmarshals the request options into out. Empty options
// leave out untouched.
func (r Request) DecodeOptions(out interface{}) error {
	if len(r.Options) == 0 || string(r.Options) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Options, out); err != nil {
		return fmt.Errorf("decode %s options: %w", r.Capability, err)
	}
	return nil
}

func marshalOptions(options interface{}) (json.RawMessage, error) {
	switch v := options.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	}
	b, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}
	return b, nil
}
