package runtime

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/msgflow/internal/runtime/config"
	"github.com/drblury/msgflow/internal/runtime/jsoncodec"
	"github.com/drblury/msgflow/internal/runtime/queue"
)

// Component kinds reported by Components.
const (
	KindFanout           = "fanout"
	KindReceiver         = "receiver"
	KindPriorityReceiver = "priority-receiver"
	KindForwarder        = "forwarder"
	KindCorrelator       = "correlator"
	KindPublisher        = "publisher"
	KindSubscriber       = "subscriber"
)

// ComponentInfo describes a component created through the Service.
type ComponentInfo struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Topic string `json:"topic,omitempty"`

	stats func() any
}

// ComponentSnapshot is a ComponentInfo with its statistics read at one point in time.
type ComponentSnapshot struct {
	ComponentInfo
	Stats any `json:"stats,omitempty"`
}

// FanoutStats reports a fan-out's live subscriber count.
type FanoutStats struct {
	Subscribers int `json:"subscribers"`
}

// ReceiverStats reports a receiver buffer.
type ReceiverStats struct {
	Queued   int    `json:"queued"`
	Capacity int    `json:"capacity"`
	Enqueued uint64 `json:"enqueued"`
	Dropped  uint64 `json:"dropped"`
}

// CorrelatorStats reports a correlator's outstanding requests.
type CorrelatorStats struct {
	Pending int `json:"pending"`
}

func receiverStats[M any](b queue.Buffer[M]) func() any {
	return func() any {
		capacity := b.Capacity()
		if capacity == config.Unbounded {
			capacity = 0
		}
		return ReceiverStats{
			Queued:   b.Count(),
			Capacity: capacity,
			Enqueued: b.Enqueued(),
			Dropped:  b.Dropped(),
		}
	}
}

// Components returns a snapshot of every component created through the
// Service, in creation order.
func (s *Service) Components() []ComponentSnapshot {
	s.mu.Lock()
	infos := append([]*ComponentInfo(nil), s.components...)
	s.mu.Unlock()

	out := make([]ComponentSnapshot, 0, len(infos))
	for _, info := range infos {
		snap := ComponentSnapshot{ComponentInfo: *info}
		if info.stats != nil {
			snap.Stats = info.stats()
		}
		out = append(out, snap)
	}
	return out
}

// MetricsHandler serves the Service's Prometheus registry.
func (s *Service) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// AdminHandler serves /metrics and /api/components.
func (s *Service) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.MetricsHandler())
	mux.HandleFunc("/api/components", s.handleGetComponents)
	return mux
}

func (s *Service) handleGetComponents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, s.Components()); err != nil {
		s.Logger.Error("Failed to encode components", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
