/*
Package runtime wires the msgflow building blocks into a Service.

# Package Structure

## Core Service (service.go)

The Service struct holds what every component shares:
  - Validated configuration with defaults applied
  - Diagnostics logger
  - Prometheus registry and metrics
  - Optional Watermill transport built from the transport registry
  - Admin HTTP server for /metrics and /api/components

## Builders (builders.go)

Generic constructors that create components from the service configuration
and track them for introspection and shutdown:
  - NewFanout, NewReceiver, NewPriorityReceiver
  - NewForwarder, NewPriorityForwarder
  - NewCorrelator
  - NewPublisherSink, NewSubscriberSource

## Components (components.go)

Component snapshots and the admin HTTP handler.

# Sub-packages

  - bridge/: Watermill publisher and subscriber adapters with JSON and protobuf codecs
  - clock/: Clock abstraction with a manual clock for tests
  - config/: Service configuration with validation
  - errors/: Sentinel errors and error types
  - fabric/: Sources, sinks, fan-out, weak subscriptions and middleware
  - forwarder/: Active forwarder with a dynamic worker pool
  - ids/: ULID generation for message IDs and component names
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - metadata/: Message metadata utilities
  - metrics/: Prometheus collectors
  - queue/: FIFO and priority receivers with overflow policies
  - rpc/: Request/reply correlator and responder

# Usage Example

	cfg := &msgflow.Config{
		Queue:     msgflow.QueueConfig{Capacity: 128, OverflowPolicy: "drop-oldest"},
		Forwarder: msgflow.ForwarderConfig{ThreadLimit: 4},
	}

	svc := msgflow.NewService(cfg, logger, ctx, msgflow.ServiceDependencies{})
	defer svc.Close(ctx)

	fwd, _ := msgflow.NewForwarder[Order](svc, "orders")
	inbox, _ := msgflow.NewReceiver[Order](svc, "inbox")
	fwd.Connect(inbox)

	_ = fwd.Post(order)
*/
package runtime
