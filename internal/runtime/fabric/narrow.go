package fabric

import (
	"context"
	"fmt"
	"reflect"

	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
)

// Match reports whether v holds a T and returns it.
func Match[T any](v any) (T, bool) {
	t, ok := v.(T)
	return t, ok
}

// Narrow adapts a Sink[T] so it can be connected to a Source[M]. Messages
// whose dynamic type is T are forwarded; everything else is ignored.
//
// It fails with a *ConfigurationError when no M value can ever hold a T.
func Narrow[M, T any](sink Sink[T]) (Sink[M], error) {
	if sink == nil {
		return nil, errspkg.ErrSinkRequired
	}
	from, to := reflect.TypeFor[M](), reflect.TypeFor[T]()
	if !assignableAtRuntime(from, to) {
		return nil, &errspkg.ConfigurationError{
			Component: "narrow",
			Reason:    fmt.Sprintf("a %s message can never hold %s", from, to),
		}
	}
	return &narrowSink[M, T]{inner: sink}, nil
}

// assignableAtRuntime reports whether some value of static type from can
// pass the type assertion .(to).
func assignableAtRuntime(from, to reflect.Type) bool {
	switch {
	case from == to:
		return true
	case from.Kind() == reflect.Interface && to.Kind() == reflect.Interface:
		return true
	case from.Kind() == reflect.Interface:
		return to.Implements(from)
	case to.Kind() == reflect.Interface:
		return from.Implements(to)
	}
	return false
}

type narrowSink[M, T any] struct {
	inner Sink[T]
}

func (n *narrowSink[M, T]) Post(msg M) error {
	if v, ok := Match[T](msg); ok {
		return n.inner.Post(v)
	}
	return nil
}

func (n *narrowSink[M, T]) PostAsync(ctx context.Context, msg M) error {
	if v, ok := Match[T](msg); ok {
		return n.inner.PostAsync(ctx, v)
	}
	return nil
}

// Envelope carries heterogeneous payloads through a single Sink[Envelope].
type Envelope struct {
	Kind    string
	Payload any
}

// Wrap builds an Envelope of the given kind.
func Wrap[T any](kind string, payload T) Envelope {
	return Envelope{Kind: kind, Payload: payload}
}

// Unwrap returns the payload when it holds a T.
func Unwrap[T any](e Envelope) (T, bool) {
	return Match[T](e.Payload)
}

// Route returns a sink that forwards envelopes of kind whose payload is a T
// and ignores the rest.
func Route[T any](kind string, sink Sink[T]) Sink[Envelope] {
	return &routeSink[T]{kind: kind, inner: sink}
}

type routeSink[T any] struct {
	kind  string
	inner Sink[T]
}

func (r *routeSink[T]) match(e Envelope) (T, bool) {
	if e.Kind != r.kind {
		var zero T
		return zero, false
	}
	return Unwrap[T](e)
}

func (r *routeSink[T]) Post(e Envelope) error {
	if v, ok := r.match(e); ok {
		return r.inner.Post(v)
	}
	return nil
}

func (r *routeSink[T]) PostAsync(ctx context.Context, e Envelope) error {
	if v, ok := r.match(e); ok {
		return r.inner.PostAsync(ctx, v)
	}
	return nil
}
