// Package msgflow is an in-process message-passing fabric. Sources fan
// messages out to any number of connected sinks, receivers buffer them under a
// block, drop-newest, or drop-oldest overflow policy, active forwarders move
// them on from a dynamically sized worker pool, and a correlator pairs
// requests with replies under per-request deadlines.
//
// Service owns the shared configuration, the diagnostics logger, the
// Prometheus metrics, and an optional Watermill transport. The generic
// builders (NewReceiver, NewForwarder, NewCorrelator, NewPublisherSink, ...)
// create components that inherit those settings and are closed when the
// service is. Every component can also be built standalone.
//
// # Connections
//
// A Sink accepts messages through Post and PostAsync. A Source connects sinks
// and delivers each posted message to all of them. Connect returns the sink
// it was given so chains read left to right:
//
//	fwd.Connect(audit)
//	msgflow.Chain(fanout, fwd).Connect(inbox)
//
// ConnectWeak subscribes a sink without keeping it alive; the subscription
// disappears once the sink is garbage collected.
//
// # Receivers and forwarders
//
// Receiver is a FIFO buffer and PriorityReceiver orders by a caller supplied
// comparator. Both are bounded by QueueConfig.Capacity unless it is Unbounded.
// Forwarder wraps a receiver with workers that drain it into the connected
// sinks, spawning workers up to ForwarderConfig.ThreadLimit and retiring them
// after ForwarderConfig.MaxIdleDuration without work.
//
// # Request/reply
//
// Correlator posts Request envelopes carrying a correlation id and completes
// the matching Call when a Reply with that id is posted back. Serve adapts a
// handler function into the responder side.
//
// # Transports
//
// Transports are looked up by name in a registry. The channel and
// channel-persistent transports are registered by importing
// transport/channel; PublisherSink and SubscriberSource bridge the fabric to
// any Watermill publisher or subscriber.
package msgflow
