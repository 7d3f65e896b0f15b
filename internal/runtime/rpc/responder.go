package rpc

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/msgflow/internal/runtime/fabric"
)

// Handler computes the reply payload for a request payload.
type Handler[Req, Resp any] func(ctx context.Context, payload Req) (Resp, error)

// Serve returns a sink that runs handler for every request and posts the
// correlated reply to replies. Handler errors and panics become error
// replies.
func Serve[Req, Resp any](handler Handler[Req, Resp], replies fabric.Sink[Reply[Resp]]) fabric.Sink[Request[Req]] {
	return &responder[Req, Resp]{
		handler: handler,
		replies: replies,
		tracer:  otel.Tracer(tracerName),
	}
}

type responder[Req, Resp any] struct {
	handler Handler[Req, Resp]
	replies fabric.Sink[Reply[Resp]]
	tracer  trace.Tracer
}

func (r *responder[Req, Resp]) Post(req Request[Req]) error {
	return r.replies.Post(r.handle(context.Background(), req))
}

func (r *responder[Req, Resp]) PostAsync(ctx context.Context, req Request[Req]) error {
	return r.replies.PostAsync(ctx, r.handle(ctx, req))
}

func (r *responder[Req, Resp]) handle(ctx context.Context, req Request[Req]) Reply[Resp] {
	ctx, span := r.tracer.Start(ctx, "msgflow.handle",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.Int64("msgflow.correlation_id", int64(req.CorrelationID))),
	)
	defer span.End()

	resp, err := r.call(ctx, req.Payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RespondError[Req, Resp](req, err)
	}
	return Respond(req, resp)
}

func (r *responder[Req, Resp]) call(ctx context.Context, payload Req) (resp Resp, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("msgflow: request handler panicked: %v", p)
		}
	}()
	return r.handler(ctx, payload)
}
