package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilities_SupportsReliableDelivery(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		want bool
	}{
		{"ack and nack", Capabilities{SupportsAck: true, SupportsNack: true}, true},
		{"ack only", Capabilities{SupportsAck: true}, false},
		{"nack only", Capabilities{SupportsNack: true}, false},
		{"neither", Capabilities{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caps.SupportsReliableDelivery())
		})
	}
}

func TestPredefinedCapabilities(t *testing.T) {
	assert.Equal(t, "channel", ChannelCapabilities.Name)
	assert.True(t, ChannelCapabilities.SupportsOrdering)
	assert.True(t, ChannelCapabilities.SupportsReliableDelivery())
	assert.False(t, ChannelCapabilities.Persistent)

	assert.Equal(t, "channel-persistent", PersistentChannelCapabilities.Name)
	assert.True(t, PersistentChannelCapabilities.Persistent)
}
