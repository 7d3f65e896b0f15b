package rpc

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/msgflow/internal/runtime/clock"
	"github.com/drblury/msgflow/internal/runtime/config"
	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
	"github.com/drblury/msgflow/internal/runtime/fabric"
	idspkg "github.com/drblury/msgflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/msgflow/internal/runtime/logging"
	"github.com/drblury/msgflow/internal/runtime/metadata"
	metricspkg "github.com/drblury/msgflow/internal/runtime/metrics"
)

const tracerName = "github.com/drblury/msgflow/rpc"

// Options configures a Correlator.
type Options struct {
	// DefaultTimeout applies when SendRequest gets a non-positive timeout.
	DefaultTimeout time.Duration
	Clock          clock.Clock
	Logger         loggingpkg.ServiceLogger
	Metrics        *metricspkg.Metrics
	// Tracer defaults to the global OpenTelemetry provider.
	Tracer trace.Tracer
	Name   string
}

// Correlator is a Source of requests and a Sink of replies. Connect the
// transport or responder that carries requests, and connect whatever carries
// replies back to the correlator.
//
// Correlation ids come from a per-instance counter. Unknown, expired and
// duplicate replies are dropped silently.
type Correlator[Req, Resp any] struct {
	name           string
	defaultTimeout time.Duration
	clock          clock.Clock
	log            loggingpkg.ServiceLogger
	metrics        *metricspkg.Metrics
	tracer         trace.Tracer

	requests *fabric.Fanout[Request[Req]]
	nextID   atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*Call[Resp]
	closed  bool
}

// New returns a correlator with no pending requests.
func New[Req, Resp any](opts Options) *Correlator[Req, Resp] {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = config.DefaultRequestTimeout
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	name := idspkg.ComponentName("correlator", opts.Name)
	log := loggingpkg.OrNop(opts.Logger)
	return &Correlator[Req, Resp]{
		name:           name,
		defaultTimeout: opts.DefaultTimeout,
		clock:          clock.OrReal(opts.Clock),
		log:            log,
		metrics:        opts.Metrics,
		tracer:         opts.Tracer,
		requests:       fabric.New[Request[Req]](fabric.Options{Name: name, Logger: log, Metrics: opts.Metrics}),
		pending:        make(map[uint64]*Call[Resp]),
	}
}

// Name returns the component name used in logs and metrics.
func (c *Correlator[Req, Resp]) Name() string { return c.name }

func (c *Correlator[Req, Resp]) Connect(sink fabric.Sink[Request[Req]]) fabric.Sink[Request[Req]] {
	return c.requests.Connect(sink)
}

func (c *Correlator[Req, Resp]) Disconnect(sink fabric.Sink[Request[Req]]) {
	c.requests.Disconnect(sink)
}

func (c *Correlator[Req, Resp]) DisconnectAll() { c.requests.DisconnectAll() }

// Pending returns the number of requests awaiting a reply.
func (c *Correlator[Req, Resp]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// SendRequest posts payload as a new request and returns its Call. The
// pending entry exists before the request leaves, so an immediate reply is
// always matched. A non-positive timeout selects the default.
func (c *Correlator[Req, Resp]) SendRequest(ctx context.Context, payload Req, timeout time.Duration) (*Call[Resp], error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	id := c.nextID.Add(1)
	now := c.clock.Now()

	ctx, span := c.tracer.Start(ctx, "msgflow.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("msgflow.correlator", c.name),
			attribute.Int64("msgflow.correlation_id", int64(id)),
			attribute.Int64("msgflow.timeout_ms", timeout.Milliseconds()),
		),
	)

	call := &Call[Resp]{
		id:       id,
		deadline: now.Add(timeout),
		started:  now,
		done:     make(chan struct{}),
		span:     span,
	}
	call.cancel = func() { c.finishClaimed(id, Reply[Resp]{}, errspkg.ErrRequestCanceled, metricspkg.OutcomeCanceled) }

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		span.SetStatus(codes.Error, errspkg.ErrCorrelatorClosed.Error())
		span.End()
		return nil, errspkg.ErrCorrelatorClosed
	}
	c.pending[id] = call
	pending := len(c.pending)
	c.mu.Unlock()
	c.metrics.SetPendingRequests(c.name, pending)

	timer := c.clock.AfterFunc(timeout, func() {
		c.finishClaimed(id, Reply[Resp]{}, errspkg.ErrRequestTimeout, metricspkg.OutcomeTimeout)
	})
	c.mu.Lock()
	if _, ok := c.pending[id]; ok {
		call.timer = timer
		timer = nil
	}
	c.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}

	req := Request[Req]{
		CorrelationID: id,
		Payload:       payload,
		Metadata:      metadata.New(metadata.KeyCorrelationID, strconv.FormatUint(id, 10), metadata.KeySource, c.name),
	}
	if err := c.requests.PostAsync(ctx, req); err != nil {
		c.finishClaimed(id, Reply[Resp]{}, err, metricspkg.OutcomeFailed)
		return nil, err
	}
	return call, nil
}

// Request sends payload with the default timeout and waits for the reply.
// Ending ctx cancels the request.
func (c *Correlator[Req, Resp]) Request(ctx context.Context, payload Req) (Resp, error) {
	call, err := c.SendRequest(ctx, payload, 0)
	if err != nil {
		var zero Resp
		return zero, err
	}
	return call.Wait(ctx)
}

// Post matches reply against the pending table. It never fails.
func (c *Correlator[Req, Resp]) Post(reply Reply[Resp]) error {
	c.match(reply)
	return nil
}

func (c *Correlator[Req, Resp]) PostAsync(_ context.Context, reply Reply[Resp]) error {
	c.match(reply)
	return nil
}

func (c *Correlator[Req, Resp]) match(reply Reply[Resp]) {
	call := c.claim(reply.CorrelationID)
	if call == nil {
		c.log.Trace("Ignoring reply without pending request", loggingpkg.LogFields{
			"correlator":     c.name,
			"correlation_id": reply.CorrelationID,
		})
		return
	}

	switch {
	case !c.clock.Now().Before(call.deadline):
		c.finish(call, Reply[Resp]{}, errspkg.ErrRequestTimeout, metricspkg.OutcomeTimeout)
	case reply.Err != "":
		err := &errspkg.RemoteError{CorrelationID: reply.CorrelationID, Message: reply.Err}
		c.finish(call, reply, err, metricspkg.OutcomeFailed)
	default:
		c.finish(call, reply, nil, metricspkg.OutcomeReplied)
	}
}

// Close fails every pending call with ErrCorrelatorClosed and rejects new
// requests.
func (c *Correlator[Req, Resp]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	calls := c.pending
	c.pending = make(map[uint64]*Call[Resp])
	c.mu.Unlock()

	for _, call := range calls {
		c.finish(call, Reply[Resp]{}, errspkg.ErrCorrelatorClosed, metricspkg.OutcomeClosed)
	}
	c.metrics.SetPendingRequests(c.name, 0)
	return nil
}

// claim removes and returns the pending call for id. Only one caller can
// win a given id, which is what makes completion exactly once.
func (c *Correlator[Req, Resp]) claim(id uint64) *Call[Resp] {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	pending := len(c.pending)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	c.metrics.SetPendingRequests(c.name, pending)
	return call
}

func (c *Correlator[Req, Resp]) finishClaimed(id uint64, reply Reply[Resp], err error, outcome string) {
	if call := c.claim(id); call != nil {
		c.finish(call, reply, err, outcome)
	}
}

func (c *Correlator[Req, Resp]) finish(call *Call[Resp], reply Reply[Resp], err error, outcome string) {
	if call.timer != nil {
		call.timer.Stop()
	}
	call.complete(reply, err)

	if err != nil {
		call.span.RecordError(err)
		call.span.SetStatus(codes.Error, err.Error())
	}
	call.span.SetAttributes(attribute.String("msgflow.outcome", outcome))
	call.span.End()

	c.metrics.RecordCompletion(c.name, outcome, c.clock.Now().Sub(call.started))
}
