package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
)

// Kind classifies how a capability completes.
type Kind int

const (
	KindOneShot Kind = iota
	KindStream
	KindFireOnly
)

func (k Kind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindFireOnly:
		return "fire"
	}
	return "oneshot"
}

// Descriptor is the type-erased view of a declaration, used by the JS
// exports, the CLI and the devhost to reach a capability by name.
type Descriptor struct {
	Name   string
	Tag    string
	Kind   Kind
	Legacy bool

	register  func(*bridge.Registry) error
	strict    func(payload string) error
	invoke    func(ctx context.Context, d *bridge.Dispatcher, options json.RawMessage) (interface{}, error)
	subscribe func(ctx context.Context, d *bridge.Dispatcher, options json.RawMessage, emit func(interface{})) (*bridge.Subscription, error)
}

// Invoke runs a one-shot or fire-only capability and waits for its result.
func (desc Descriptor) Invoke(ctx context.Context, d *bridge.Dispatcher, options json.RawMessage) (interface{}, error) {
	if desc.invoke == nil {
		return nil, fmt.Errorf("capability %s is a stream", desc.Name)
	}
	return desc.invoke(ctx, d, options)
}

// Subscribe starts a stream capability.
func (desc Descriptor) Subscribe(ctx context.Context, d *bridge.Dispatcher, options json.RawMessage, emit func(interface{})) (*bridge.Subscription, error) {
	if desc.subscribe == nil {
		return nil, fmt.Errorf("capability %s is not a stream", desc.Name)
	}
	return desc.subscribe(ctx, d, options, emit)
}

// CheckShape decodes payload strictly into the declared result type,
// failing on fields the type does not have.
func (desc Descriptor) CheckShape(payload string) error {
	if desc.strict == nil {
		return nil
	}
	return desc.strict(payload)
}

// OneShot is a capability resolved by exactly one result.
type OneShot[O, R any] struct {
	Name string
	Tag  string
}

// Call dispatches the capability.
func (c OneShot[O, R]) Call(ctx context.Context, d *bridge.Dispatcher, opts O) *bridge.Future[R] {
	return bridge.Call[R](ctx, d, c.Name, c.Tag, opts)
}

// Stream is a capability delivering events until stopped.
type Stream[O, R any] struct {
	Name string
	Tag  string
}

// Start subscribes to the stream.
func (c Stream[O, R]) Start(ctx context.Context, d *bridge.Dispatcher, opts O, onEvent func(R)) (*bridge.Subscription, error) {
	return bridge.Subscribe(ctx, d, c.Name, c.Tag, opts, onEvent)
}

// FireOnly is a capability with no completion at all.
type FireOnly[O any] struct {
	Name string
}

// Fire sends the request.
func (c FireOnly[O]) Fire(ctx context.Context, d *bridge.Dispatcher, opts O) error {
	return d.Fire(ctx, c.Name, opts)
}

func oneShot[O, R any](name, tag string, legacy bool) OneShot[O, R] {
	add(Descriptor{
		Name:     name,
		Tag:      tag,
		Kind:     KindOneShot,
		Legacy:   legacy,
		register: registerTag[R](tag),
		strict:   strictDecode[R],
		invoke: func(ctx context.Context, d *bridge.Dispatcher, options json.RawMessage) (interface{}, error) {
			return bridge.Call[R](ctx, d, name, tag, nullable(options)).Await(ctx)
		},
	})
	return OneShot[O, R]{Name: name, Tag: tag}
}

func void[O any](name string) OneShot[O, struct{}] {
	return oneShot[O, struct{}](name, bridge.TagVoid, false)
}

func stream[O, R any](name, tag string, legacy bool) Stream[O, R] {
	add(Descriptor{
		Name:     name,
		Tag:      tag,
		Kind:     KindStream,
		Legacy:   legacy,
		register: registerTag[R](tag),
		strict:   strictDecode[R],
		subscribe: func(ctx context.Context, d *bridge.Dispatcher, options json.RawMessage, emit func(interface{})) (*bridge.Subscription, error) {
			return bridge.Subscribe(ctx, d, name, tag, nullable(options), func(v R) { emit(v) })
		},
	})
	return Stream[O, R]{Name: name, Tag: tag}
}

func fireOnly[O any](name string, legacy bool) FireOnly[O] {
	add(Descriptor{
		Name:   name,
		Kind:   KindFireOnly,
		Legacy: legacy,
		invoke: func(ctx context.Context, d *bridge.Dispatcher, options json.RawMessage) (interface{}, error) {
			return nil, d.Fire(ctx, name, nullable(options))
		},
	})
	return FireOnly[O]{Name: name}
}

func registerTag[R any](tag string) func(*bridge.Registry) error {
	return func(reg *bridge.Registry) error {
		// primitives are built in, and tags are shared between capabilities
		if reg.Has(tag) {
			return nil
		}
		return bridge.RegisterJSON[R](reg, tag)
	}
}

func strictDecode[R any](payload string) error {
	if payload == "" {
		return nil
	}
	var v R
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.DisallowUnknownFields()
	return dec.Decode(&v)
}

// nullable keeps absent options absent instead of sending a typed nil.
func nullable(options json.RawMessage) interface{} {
	if len(options) == 0 {
		return nil
	}
	return options
}
