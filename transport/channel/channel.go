// Package channel provides the in-memory Go channel transport. Importing it
// registers "channel" and "channel-persistent" with the default registry.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/msgflow/transport"
)

const (
	// TransportName is the name used to register this transport.
	TransportName = "channel"
	// PersistentTransportName registers the variant that keeps published
	// messages for subscribers that join later.
	PersistentTransportName = "channel-persistent"
)

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	Register()
}

// Register adds both channel transports to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
	transport.RegisterWithCapabilities(PersistentTransportName, BuildPersistent, transport.PersistentChannelCapabilities)
}

// Build creates a Go channel transport that only delivers to active subscribers.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return build(gochannel.Config{}, logger), nil
}

// BuildPersistent creates a Go channel transport that replays earlier
// messages to new subscribers.
func BuildPersistent(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return build(gochannel.Config{Persistent: true}, logger), nil
}

func build(cfg gochannel.Config, logger watermill.LoggerAdapter) transport.Transport {
	pub, sub := Factory(cfg, logger)
	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}
}

// Capabilities returns the capabilities of the non-persistent transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
