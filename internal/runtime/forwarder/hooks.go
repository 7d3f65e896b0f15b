package forwarder

import (
	"time"

	loggingpkg "github.com/drblury/msgflow/internal/runtime/logging"
)

// RetireReason explains why a worker exited.
type RetireReason string

const (
	RetireIdle     RetireReason = "idle"
	RetireShutdown RetireReason = "shutdown"
)

// WorkerContext describes a worker to hooks.
type WorkerContext struct {
	// Forwarder is the name of the owning forwarder.
	Forwarder string
	// WorkerID is unique per forwarder.
	WorkerID uint64
	// StartedAt is when the worker was spawned.
	StartedAt time.Time
	// Forwarded is how many messages this worker delivered without a sink error.
	Forwarded uint64
	// Duration is the worker lifetime. Only set in OnWorkerRetire.
	Duration time.Duration
	// Reason is only set in OnWorkerRetire.
	Reason RetireReason
}

// WorkerHooks are optional callbacks for worker lifecycle events. Nil hooks
// are skipped.
type WorkerHooks struct {
	OnWorkerStart  func(ctx WorkerContext)
	OnWorkerRetire func(ctx WorkerContext)
	// OnForwardError is called when a downstream sink fails a message. With
	// several downstream sinks it may be called concurrently.
	OnForwardError func(ctx WorkerContext, err error)
}

// Merge returns hooks that call h first and then other.
func (h WorkerHooks) Merge(other WorkerHooks) WorkerHooks {
	return WorkerHooks{
		OnWorkerStart:  chain(h.OnWorkerStart, other.OnWorkerStart),
		OnWorkerRetire: chain(h.OnWorkerRetire, other.OnWorkerRetire),
		OnForwardError: chainErr(h.OnForwardError, other.OnForwardError),
	}
}

func chain(a, b func(WorkerContext)) func(WorkerContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx WorkerContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErr(a, b func(WorkerContext, error)) func(WorkerContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx WorkerContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h WorkerHooks) start(ctx WorkerContext) {
	if h.OnWorkerStart != nil {
		h.OnWorkerStart(ctx)
	}
}

func (h WorkerHooks) retire(ctx WorkerContext) {
	if h.OnWorkerRetire != nil {
		h.OnWorkerRetire(ctx)
	}
}

func (h WorkerHooks) forwardError(ctx WorkerContext, err error) {
	if h.OnForwardError != nil {
		h.OnForwardError(ctx, err)
	}
}

// LoggingHooks logs worker lifecycle events at debug level. Forwarding
// failures are already logged by the downstream fan-out.
func LoggingHooks(log loggingpkg.ServiceLogger) WorkerHooks {
	log = loggingpkg.OrNop(log)
	return WorkerHooks{
		OnWorkerStart: func(ctx WorkerContext) {
			log.Debug("Worker started", loggingpkg.LogFields{
				"forwarder": ctx.Forwarder,
				"worker_id": ctx.WorkerID,
			})
		},
		OnWorkerRetire: func(ctx WorkerContext) {
			log.Debug("Worker retired", loggingpkg.LogFields{
				"forwarder":   ctx.Forwarder,
				"worker_id":   ctx.WorkerID,
				"reason":      string(ctx.Reason),
				"forwarded":   ctx.Forwarded,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks forwards lifecycle events to simple counters keyed by
// forwarder name.
func MetricsHooks(onStart, onRetire, onError func(forwarder string)) WorkerHooks {
	return WorkerHooks{
		OnWorkerStart: func(ctx WorkerContext) {
			if onStart != nil {
				onStart(ctx.Forwarder)
			}
		},
		OnWorkerRetire: func(ctx WorkerContext) {
			if onRetire != nil {
				onRetire(ctx.Forwarder)
			}
		},
		OnForwardError: func(ctx WorkerContext, _ error) {
			if onError != nil {
				onError(ctx.Forwarder)
			}
		},
	}
}

// AlertingHooks only reacts to forwarding failures.
func AlertingHooks(alert func(ctx WorkerContext, err error)) WorkerHooks {
	return WorkerHooks{OnForwardError: alert}
}
