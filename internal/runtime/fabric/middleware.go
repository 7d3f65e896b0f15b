package fabric

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/msgflow/internal/runtime/logging"
)

// Middleware decorates a Sink.
type Middleware[M any] func(Sink[M]) Sink[M]

// Apply wraps sink so the first middleware is the outermost.
func Apply[M any](sink Sink[M], mws ...Middleware[M]) Sink[M] {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			sink = mws[i](sink)
		}
	}
	return sink
}

type middlewareSink[M any] struct {
	next Sink[M]
	wrap func(ctx context.Context, msg M, call func(context.Context) error) error
}

func (m *middlewareSink[M]) Post(msg M) error {
	return m.wrap(context.Background(), msg, func(context.Context) error { return m.next.Post(msg) })
}

func (m *middlewareSink[M]) PostAsync(ctx context.Context, msg M) error {
	return m.wrap(ctx, msg, func(ctx context.Context) error { return m.next.PostAsync(ctx, msg) })
}

// Recoverer turns a panic in the wrapped sink into an error.
func Recoverer[M any]() Middleware[M] {
	return func(next Sink[M]) Sink[M] {
		return &middlewareSink[M]{
			next: next,
			wrap: func(ctx context.Context, _ M, call func(context.Context) error) (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("msgflow: sink panicked: %v", r)
					}
				}()
				return call(ctx)
			},
		}
	}
}

// Logging records each delivery at debug level and failures at error level.
// Dropped messages are not treated as failures.
func Logging[M any](log loggingpkg.ServiceLogger, name string) Middleware[M] {
	log = loggingpkg.OrNop(log).With(loggingpkg.LogFields{"sink": name})
	return func(next Sink[M]) Sink[M] {
		return &middlewareSink[M]{
			next: next,
			wrap: func(ctx context.Context, msg M, call func(context.Context) error) error {
				err := call(ctx)
				switch {
				case err == nil:
					log.Trace("Delivered message", loggingpkg.LogFields{"message_type": fmt.Sprintf("%T", msg)})
				case errors.Is(err, errspkg.ErrMessageDropped):
					log.Debug("Message dropped", nil)
				default:
					log.Error("Delivery failed", err, nil)
				}
				return err
			},
		}
	}
}

// Tracing starts a span around every delivery. A nil tracer selects the
// global provider.
func Tracing[M any](tracer trace.Tracer, name string) Middleware[M] {
	if tracer == nil {
		tracer = otel.Tracer("github.com/drblury/msgflow/fabric")
	}
	return func(next Sink[M]) Sink[M] {
		return &middlewareSink[M]{
			next: next,
			wrap: func(ctx context.Context, msg M, call func(context.Context) error) error {
				ctx, span := tracer.Start(ctx, "msgflow.deliver",
					trace.WithSpanKind(trace.SpanKindConsumer),
					trace.WithAttributes(
						attribute.String("msgflow.sink", name),
						attribute.String("msgflow.message_type", fmt.Sprintf("%T", msg)),
					),
				)
				defer span.End()

				err := call(ctx)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
				return err
			},
		}
	}
}
