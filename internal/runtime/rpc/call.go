package rpc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/msgflow/internal/runtime/clock"
	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
)

// Call is the caller's handle on a pending request. It completes exactly
// once: with the reply, a timeout, a cancellation or correlator shutdown.
type Call[Resp any] struct {
	id       uint64
	deadline time.Time
	started  time.Time
	done     chan struct{}
	cancel   func()
	span     trace.Span

	// guarded by the correlator lock until claimed
	timer clock.Timer

	reply Reply[Resp]
	err   error
}

// ID returns the correlation id.
func (c *Call[Resp]) ID() uint64 { return c.id }

// Deadline is when the request expires.
func (c *Call[Resp]) Deadline() time.Time { return c.deadline }

// Done is closed once the call has completed.
func (c *Call[Resp]) Done() <-chan struct{} { return c.done }

// Result returns the outcome of a completed call, or ErrRequestPending while
// it is still in flight.
func (c *Call[Resp]) Result() (Resp, error) {
	select {
	case <-c.done:
		return c.reply.Payload, c.err
	default:
		var zero Resp
		return zero, errspkg.ErrRequestPending
	}
}

// Reply returns the full reply, including metadata, once the call succeeded.
func (c *Call[Resp]) Reply() (Reply[Resp], bool) {
	select {
	case <-c.done:
		return c.reply, c.err == nil
	default:
		return Reply[Resp]{}, false
	}
}

// Wait blocks until the call completes. If ctx ends first the call is
// canceled; a reply that won the race is still returned.
func (c *Call[Resp]) Wait(ctx context.Context) (Resp, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		c.Cancel()
		<-c.done
	}
	return c.reply.Payload, c.err
}

// Cancel completes the call with ErrRequestCanceled unless it already
// completed. A reply arriving afterwards is ignored.
func (c *Call[Resp]) Cancel() {
	c.cancel()
}

func (c *Call[Resp]) complete(reply Reply[Resp], err error) {
	c.reply = reply
	c.err = err
	close(c.done)
}
