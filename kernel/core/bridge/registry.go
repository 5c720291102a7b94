package bridge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// DecodeFunc turns a result payload into the value a continuation expects.
type DecodeFunc func(payload string) (interface{}, error)

// Registry maps result type tags to decoders. It is populated once at
// startup; adding a capability means adding one entry here.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

// NewRegistry returns a registry that already knows the primitive tags.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]DecodeFunc)}
	r.decoders[TagVoid] = decodeVoid
	r.decoders[TagString] = decodeString
	r.decoders[TagBool] = decodeBool
	return r
}

// Register adds a decoder for tag.
func (r *Registry) Register(tag string, fn DecodeFunc) error {
	if tag == "" || fn == nil {
		return fmt.Errorf("bridge: register: empty tag or nil decoder")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decoders[tag]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTag, tag)
	}
	r.decoders[tag] = fn
	return nil
}

// RegisterJSON registers tag as a JSON document decoding into T.
func RegisterJSON[T any](r *Registry, tag string) error {
	return r.Register(tag, func(payload string) (interface{}, error) {
		var v T
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, err
		}
		return v, nil
	})
}

// Has reports whether tag is known.
func (r *Registry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[tag]
	return ok
}

// Decode runs the decoder for tag over payload.
func (r *Registry) Decode(tag, payload string) (interface{}, error) {
	r.mu.RLock()
	fn, ok := r.decoders[tag]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResultType, tag)
	}
	v, err := fn(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodePayload, tag, err)
	}
	return v, nil
}

// Tags lists the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	tags := lo.Keys(r.decoders)
	r.mu.RUnlock()

	sort.Strings(tags)
	return tags
}

func decodeVoid(string) (interface{}, error) {
	return struct{}{}, nil
}

// decodeString accepts both a JSON string literal and raw text; hosts are
// inconsistent about quoting primitive results.
func decodeString(payload string) (interface{}, error) {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
			return nil, err
		}
		return s, nil
	}
	return payload, nil
}

func decodeBool(payload string) (interface{}, error) {
	var b bool
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &b); err != nil {
		return nil, err
	}
	return b, nil
}
