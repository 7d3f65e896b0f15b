package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Overflow policy names accepted by QueueConfig.OverflowPolicy.
const (
	OverflowBlock      = "block"
	OverflowDropNewest = "drop-newest"
	OverflowDropOldest = "drop-oldest"
)

const (
	DefaultQueueCapacity        = 1024
	DefaultThreadLimit          = 1
	DefaultMaxIdleDuration      = 2 * time.Second
	DefaultSpawnThresholdFactor = 1.0
	DefaultRequestTimeout       = 30 * time.Second
	DefaultMetricsNamespace     = "msgflow"
	DefaultOverflowPolicy       = OverflowBlock
)

// QueueConfig configures Queue and Priority Queue receivers.
type QueueConfig struct {
	// Capacity bounds the number of buffered messages. Zero selects
	// DefaultQueueCapacity; use Unbounded for no limit.
	Capacity int
	// OverflowPolicy is one of "block", "drop-newest" or "drop-oldest".
	OverflowPolicy string
	// BlockTimeout caps how long a producer waits under the block policy
	// before the message is dropped. Zero waits indefinitely.
	BlockTimeout time.Duration
}

// ForwarderConfig configures the worker pool of active forwarders.
type ForwarderConfig struct {
	// ThreadLimit is the maximum number of live workers.
	ThreadLimit int
	// MaxIdleDuration is how long a worker waits for a message before it retires.
	MaxIdleDuration time.Duration
	// SpawnThresholdFactor is the queued-messages-per-worker ratio above which
	// another worker is started.
	SpawnThresholdFactor float64
}

// CorrelatorConfig configures request/reply correlators.
type CorrelatorConfig struct {
	// DefaultTimeout applies to requests sent without an explicit timeout.
	DefaultTimeout time.Duration
}

// Config groups the settings used by Service to build msgflow components.
type Config struct {
	Queue      QueueConfig
	Forwarder  ForwarderConfig
	Correlator CorrelatorConfig

	// PubSubSystem selects the transport used to bridge the fabric onto
	// Watermill publishers and subscribers. Empty disables bridging.
	PubSubSystem string

	// MetricsEnabled registers Prometheus collectors for every component.
	MetricsEnabled bool
	// MetricsNamespace prefixes every collector name. Defaults to "msgflow".
	MetricsNamespace string

	// AdminAddress is the listen address for the admin HTTP server that
	// serves /metrics and /api/components. Empty disables it.
	AdminAddress string
}

// Unbounded can be used as QueueConfig.Capacity to disable the size limit.
const Unbounded = math.MaxInt

// GetPubSubSystem implements transport.Config.
func (c *Config) GetPubSubSystem() string { return c.PubSubSystem }

// WithDefaults returns a copy with zero values replaced by package defaults.
func (c Config) WithDefaults() Config {
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = DefaultQueueCapacity
	}
	if c.Queue.OverflowPolicy == "" {
		c.Queue.OverflowPolicy = DefaultOverflowPolicy
	}
	if c.Forwarder.ThreadLimit == 0 {
		c.Forwarder.ThreadLimit = DefaultThreadLimit
	}
	if c.Forwarder.MaxIdleDuration == 0 {
		c.Forwarder.MaxIdleDuration = DefaultMaxIdleDuration
	}
	if c.Forwarder.SpawnThresholdFactor == 0 {
		c.Forwarder.SpawnThresholdFactor = DefaultSpawnThresholdFactor
	}
	if c.Correlator.DefaultTimeout == 0 {
		c.Correlator.DefaultTimeout = DefaultRequestTimeout
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = DefaultMetricsNamespace
	}
	return c
}

func (c Config) String() string {
	capacity := fmt.Sprint(c.Queue.Capacity)
	if c.Queue.Capacity == Unbounded {
		capacity = "unbounded"
	}
	return fmt.Sprintf(
		"{Queue:{Capacity:%s OverflowPolicy:%s BlockTimeout:%s} Forwarder:%+v Correlator:%+v PubSubSystem:%s MetricsEnabled:%t MetricsNamespace:%s AdminAddress:%s}",
		capacity, c.Queue.OverflowPolicy, c.Queue.BlockTimeout,
		c.Forwarder, c.Correlator, c.PubSubSystem, c.MetricsEnabled, c.MetricsNamespace, c.AdminAddress,
	)
}

// Validate checks every section and joins all problems into one error.
// Zero values are accepted because WithDefaults fills them in.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateQueue()...)
	errs = append(errs, c.validateForwarder()...)
	errs = append(errs, c.validateCorrelator()...)

	return errors.Join(errs...)
}

func (c *Config) validateQueue() []error {
	var errs []error
	if c.Queue.Capacity < 0 {
		errs = append(errs, fmt.Errorf("queue: capacity %d cannot be negative", c.Queue.Capacity))
	}
	switch strings.ToLower(c.Queue.OverflowPolicy) {
	case "", OverflowBlock, OverflowDropNewest, OverflowDropOldest:
	default:
		errs = append(errs, fmt.Errorf("queue: unknown overflow policy %q", c.Queue.OverflowPolicy))
	}
	if c.Queue.BlockTimeout < 0 {
		errs = append(errs, errors.New("queue: block timeout cannot be negative"))
	}
	return errs
}

func (c *Config) validateForwarder() []error {
	var errs []error
	if c.Forwarder.ThreadLimit < 0 {
		errs = append(errs, errors.New("forwarder: thread limit cannot be negative"))
	}
	if c.Forwarder.MaxIdleDuration < 0 {
		errs = append(errs, errors.New("forwarder: max idle duration cannot be negative"))
	}
	if c.Forwarder.SpawnThresholdFactor < 0 || math.IsNaN(c.Forwarder.SpawnThresholdFactor) {
		errs = append(errs, errors.New("forwarder: spawn threshold factor must be a non-negative number"))
	}
	return errs
}

func (c *Config) validateCorrelator() []error {
	if c.Correlator.DefaultTimeout < 0 {
		return []error{errors.New("correlator: default timeout cannot be negative")}
	}
	return nil
}

// ValidateConfig is a convenience function to validate a config pointer.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
