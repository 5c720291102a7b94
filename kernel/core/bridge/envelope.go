package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Primitive result type tags understood by every Registry.
const (
	TagVoid   = "void"
	TagString = "string"
	TagBool   = "bool"
)

// Envelope is the completion signal crossing the boundary inbound.
// ResultPayload is itself JSON text, empty for TagVoid.
type Envelope struct {
	OperationID   string `json:"operationId"`
	ResultTypeTag string `json:"resultTypeTag"`
	ResultPayload string `json:"resultPayload"`
}

// wireEnvelope also accepts the field names emitted by older host bridges.
type wireEnvelope struct {
	OperationID   string `json:"operationId"`
	ResultTypeTag string `json:"resultTypeTag"`
	ResultPayload string `json:"resultPayload"`

	CallbackID string `json:"CallbackId"`
	TypeName   string `json:"TypeName"`
	Result     string `json:"Result"`
}

// ParseEnvelope decodes a serialized envelope. Any failure wraps
// ErrMalformedEnvelope.
func ParseEnvelope(raw string) (Envelope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Envelope{}, fmt.Errorf("%w: empty input", ErrMalformedEnvelope)
	}

	var w wireEnvelope
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	env := Envelope{
		OperationID:   firstNonEmpty(w.OperationID, w.CallbackID),
		ResultTypeTag: firstNonEmpty(w.ResultTypeTag, w.TypeName),
		ResultPayload: firstNonEmpty(w.ResultPayload, w.Result),
	}
	if env.OperationID == "" {
		return Envelope{}, fmt.Errorf("%w: missing operationId", ErrMalformedEnvelope)
	}
	if env.ResultTypeTag == "" {
		return Envelope{}, fmt.Errorf("%w: missing resultTypeTag", ErrMalformedEnvelope)
	}
	return env, nil
}

// Marshal serializes the envelope to the single string the boundary passes.
func (e Envelope) Marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NewEnvelope builds a serialized envelope for value. Hosts, harnesses and
// tests use it; the core itself only parses.
func NewEnvelope(operationID, tag string, value interface{}) (string, error) {
	payload, err := EncodePayload(tag, value)
	if err != nil {
		return "", err
	}
	return Envelope{
		OperationID:   operationID,
		ResultTypeTag: tag,
		ResultPayload: payload,
	}.Marshal()
}

// EncodePayload serializes value the way a host does before wrapping it in
// an envelope.
func EncodePayload(tag string, value interface{}) (string, error) {
	if tag == TagVoid {
		return "", nil
	}
	if raw, ok := value.(json.RawMessage); ok {
		return string(raw), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", tag, err)
	}
	return string(b), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
