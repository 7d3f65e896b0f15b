package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/drblury/msgflow/internal/runtime/clock"
	"github.com/drblury/msgflow/internal/runtime/config"
	metricspkg "github.com/drblury/msgflow/internal/runtime/metrics"
)

// OverflowPolicy decides what happens when a message arrives at a full buffer.
type OverflowPolicy int

const (
	// Block makes the producer wait for space, up to Options.BlockTimeout,
	// after which the message is dropped like DropNewest.
	Block OverflowPolicy = iota
	// DropNewest discards the incoming message.
	DropNewest
	// DropOldest evicts the earliest-inserted buffered message.
	DropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case Block:
		return config.OverflowBlock
	case DropNewest:
		return config.OverflowDropNewest
	case DropOldest:
		return config.OverflowDropOldest
	}
	return fmt.Sprintf("OverflowPolicy(%d)", int(p))
}

// ParseOverflowPolicy maps a configuration name to a policy. The empty string
// selects Block.
func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", config.OverflowBlock:
		return Block, nil
	case config.OverflowDropNewest:
		return DropNewest, nil
	case config.OverflowDropOldest:
		return DropOldest, nil
	}
	return Block, fmt.Errorf("msgflow: unknown overflow policy %q", name)
}

// Options configures receivers.
type Options struct {
	// Capacity bounds the buffer. Zero, negative and config.Unbounded all
	// mean no limit.
	Capacity int
	Policy   OverflowPolicy
	// BlockTimeout limits how long a Block producer waits. Zero or negative
	// waits indefinitely.
	BlockTimeout time.Duration
	Clock        clock.Clock
	Name         string
	Metrics      *metricspkg.Metrics
}

// OptionsFromConfig converts a QueueConfig. Unknown policy names are rejected.
func OptionsFromConfig(cfg config.QueueConfig) (Options, error) {
	policy, err := ParseOverflowPolicy(cfg.OverflowPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Capacity:     cfg.Capacity,
		Policy:       policy,
		BlockTimeout: cfg.BlockTimeout,
	}, nil
}

func (o Options) capacity() int {
	if o.Capacity <= 0 {
		return config.Unbounded
	}
	return o.Capacity
}

func (o Options) policy() OverflowPolicy {
	switch o.Policy {
	case DropNewest, DropOldest:
		return o.Policy
	}
	return Block
}
