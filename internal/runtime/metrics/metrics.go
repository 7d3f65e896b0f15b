// Package metrics holds the Prometheus collectors shared by fabric, receiver,
// forwarder and correlator components. A nil *Metrics is valid and records
// nothing, so components can be built without observability.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Completion outcomes recorded for correlated requests.
const (
	OutcomeReplied  = "replied"
	OutcomeTimeout  = "timeout"
	OutcomeCanceled = "canceled"
	OutcomeClosed   = "closed"
	OutcomeFailed   = "failed"
)

// Metrics tracks fan-out, buffering, worker pool and correlation statistics.
type Metrics struct {
	mu sync.Mutex

	deliveriesTotal  *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec

	enqueuedTotal *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec

	liveWorkers    *prometheus.GaugeVec
	highWaterMark  *prometheus.GaugeVec
	workersSpawned *prometheus.CounterVec
	workersRetired *prometheus.CounterVec
	forwardedTotal *prometheus.CounterVec

	pendingRequests *prometheus.GaugeVec
	completedTotal  *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(namespace, subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newGaugeVec(namespace, subsystem, name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// New creates the collectors under namespace. A nil registerer selects the
// Prometheus default registerer.
func New(namespace string, registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "msgflow"
	}
	component := []string{"component"}

	return &Metrics{
		registerer:       registerer,
		deliveriesTotal:  newCounterVec(namespace, "fabric", "deliveries_total", "Messages handed to subscribers during fan-out", component),
		deliveryFailures: newCounterVec(namespace, "fabric", "delivery_failures_total", "Subscriber deliveries that returned an error or panicked", component),
		enqueuedTotal:    newCounterVec(namespace, "receiver", "enqueued_total", "Messages accepted into a receiver buffer", component),
		droppedTotal:     newCounterVec(namespace, "receiver", "dropped_total", "Messages discarded by the overflow policy", []string{"component", "policy"}),
		queueDepth:       newGaugeVec(namespace, "receiver", "depth", "Messages currently buffered", component),
		liveWorkers:      newGaugeVec(namespace, "forwarder", "live_workers", "Workers currently draining the forwarder queue", component),
		highWaterMark:    newGaugeVec(namespace, "forwarder", "live_workers_high_water", "Highest number of concurrently live workers", component),
		workersSpawned:   newCounterVec(namespace, "forwarder", "workers_spawned_total", "Workers started by the spawn heuristic", component),
		workersRetired:   newCounterVec(namespace, "forwarder", "workers_retired_total", "Workers retired after the idle timeout", component),
		forwardedTotal:   newCounterVec(namespace, "forwarder", "forwarded_total", "Messages forwarded downstream by workers", []string{"component", "result"}),
		pendingRequests:  newGaugeVec(namespace, "correlator", "pending_requests", "Requests awaiting a correlated reply", component),
		completedTotal:   newCounterVec(namespace, "correlator", "completed_total", "Requests completed, by outcome", []string{"component", "outcome"}),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "correlator",
				Name:      "request_duration_seconds",
				Help:      "Time from sending a request to its completion",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"component", "outcome"},
		),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	for _, c := range m.collectors() {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.deliveriesTotal,
		m.deliveryFailures,
		m.enqueuedTotal,
		m.droppedTotal,
		m.queueDepth,
		m.liveWorkers,
		m.highWaterMark,
		m.workersSpawned,
		m.workersRetired,
		m.forwardedTotal,
		m.pendingRequests,
		m.completedTotal,
		m.requestLatency,
	}
}

// RecordDelivery counts one subscriber delivery and whether it failed.
func (m *Metrics) RecordDelivery(component string, failed bool) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(component).Inc()
	if failed {
		m.deliveryFailures.WithLabelValues(component).Inc()
	}
}

// RecordEnqueued counts an accepted message and updates the depth gauge.
func (m *Metrics) RecordEnqueued(component string, depth int) {
	if m == nil {
		return
	}
	m.enqueuedTotal.WithLabelValues(component).Inc()
	m.queueDepth.WithLabelValues(component).Set(float64(depth))
}

// RecordDropped counts a message discarded under policy.
func (m *Metrics) RecordDropped(component, policy string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(component, policy).Inc()
}

// SetQueueDepth updates the buffered-messages gauge.
func (m *Metrics) SetQueueDepth(component string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(component).Set(float64(depth))
}

// RecordWorkerSpawned updates the live and high-water gauges after a spawn.
func (m *Metrics) RecordWorkerSpawned(component string, live, highWater int) {
	if m == nil {
		return
	}
	m.workersSpawned.WithLabelValues(component).Inc()
	m.liveWorkers.WithLabelValues(component).Set(float64(live))
	m.highWaterMark.WithLabelValues(component).Set(float64(highWater))
}

// RecordWorkerRetired updates the live gauge after a worker exits.
func (m *Metrics) RecordWorkerRetired(component string, live int) {
	if m == nil {
		return
	}
	m.workersRetired.WithLabelValues(component).Inc()
	m.liveWorkers.WithLabelValues(component).Set(float64(live))
}

// RecordForwarded counts a message a worker handed downstream.
func (m *Metrics) RecordForwarded(component string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.forwardedTotal.WithLabelValues(component, result).Inc()
}

// SetPendingRequests updates the pending-request gauge.
func (m *Metrics) SetPendingRequests(component string, pending int) {
	if m == nil {
		return
	}
	m.pendingRequests.WithLabelValues(component).Set(float64(pending))
}

// RecordCompletion counts a completed request and observes its latency.
func (m *Metrics) RecordCompletion(component, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.completedTotal.WithLabelValues(component, outcome).Inc()
	m.requestLatency.WithLabelValues(component, outcome).Observe(elapsed.Seconds())
}

// Reset clears every collector (useful for testing).
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deliveriesTotal.Reset()
	m.deliveryFailures.Reset()
	m.enqueuedTotal.Reset()
	m.droppedTotal.Reset()
	m.queueDepth.Reset()
	m.liveWorkers.Reset()
	m.highWaterMark.Reset()
	m.workersSpawned.Reset()
	m.workersRetired.Reset()
	m.forwardedTotal.Reset()
	m.pendingRequests.Reset()
	m.completedTotal.Reset()
	m.requestLatency.Reset()
}
