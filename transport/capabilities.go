package transport

// Capabilities describes the delivery guarantees of a transport backend.
type Capabilities struct {
	// Name is the registered transport name.
	Name string

	// SupportsOrdering indicates messages on a topic are delivered in publish order.
	SupportsOrdering bool

	// SupportsAck indicates the transport waits for explicit acknowledgment.
	SupportsAck bool

	// SupportsNack indicates a nacked message is redelivered.
	SupportsNack bool

	// Persistent indicates messages published before a subscription exists
	// are retained and delivered to later subscribers.
	Persistent bool
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	// PersistentChannelCapabilities for the in-memory transport that replays
	// earlier messages to late subscribers.
	PersistentChannelCapabilities = Capabilities{
		Name:             "channel-persistent",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Persistent:       true,
	}
)
