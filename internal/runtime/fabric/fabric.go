// Package fabric defines the Source/Sink/Connection contracts every msgflow
// component is built on, and Fanout, the thread-safe multicast registry that
// implements them.
package fabric

import "context"

// Sink consumes posted messages.
//
// Post is the immediate, synchronous path and must not wait on anything the
// sink does not own. PostAsync may suspend (for example on a full buffer) and
// stops waiting when ctx ends.
type Sink[M any] interface {
	Post(msg M) error
	PostAsync(ctx context.Context, msg M) error
}

// Source publishes messages to the sinks connected to it.
//
// Connect returns a Sink, so a.Connect(b).Connect(c) does not compile. Use
// Chain to build a pipeline: Chain(a, b).Connect(c) wires a -> b -> c.
type Source[M any] interface {
	// Connect registers sink and returns it, which lets the caller keep a
	// handle for Disconnect. Connecting the same sink twice creates two entries.
	Connect(sink Sink[M]) Sink[M]
	// Disconnect removes every entry for sink. It is a no-op when absent.
	Disconnect(sink Sink[M])
	DisconnectAll()
}

// Connection is both a Sink and a Source.
type Connection[M any] interface {
	Sink[M]
	Source[M]
}

// SinkFunc adapts a function to Sink. Post runs it with context.Background.
type SinkFunc[M any] func(ctx context.Context, msg M) error

func (f SinkFunc[M]) Post(msg M) error {
	return f(context.Background(), msg)
}

func (f SinkFunc[M]) PostAsync(ctx context.Context, msg M) error {
	return f(ctx, msg)
}

// Chain connects next to src and returns next, so
// Chain(Chain(a, b), c) wires a -> b -> c.
func Chain[M any](src Source[M], next Connection[M]) Connection[M] {
	src.Connect(next)
	return next
}

// Discard returns a sink that accepts and ignores every message.
func Discard[M any]() Sink[M] {
	return SinkFunc[M](func(context.Context, M) error { return nil })
}
