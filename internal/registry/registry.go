package registry

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/trandh/pulse/internal/selector"
	"github.com/trandh/pulse/internal/stream"
)

// historyCap bounds the per-backend latency history. The oldest entry
// is evicted from the head once the capacity is reached.
const historyCap = 20

// maxAffinityEntries bounds the affinity map. When full, new clients
// are still routed but not pinned, so the map cannot grow without
// limit under churny traffic.
const maxAffinityEntries = 10_000

// Seed describes one backend at startup.
type Seed struct {
	URL    string
	Region string
}

// BackendStatus is the wire shape of one backend in a published
// snapshot. Uptime and Downtime are the success/failure probe counters;
// consumers derive the uptime ratio as uptime/(uptime+downtime+1)*100.
// History entries are nil for no data, 0 for a failed probe, and the
// probe latency in milliseconds otherwise.
type BackendStatus struct {
	URL          string   `json:"url"`
	Region       string   `json:"region"`
	Healthy      bool     `json:"healthy"`
	ResponseTime *int64   `json:"responseTime,omitempty"`
	LastCheck    *string  `json:"lastCheck,omitempty"`
	Uptime       uint64   `json:"uptime"`
	Downtime     uint64   `json:"downtime"`
	History      []*int64 `json:"history"`
}

// Target is a probe target handed to the health monitor: the backend's
// position in the pool, its URL, and its liveness at snapshot time.
type Target struct {
	Index   int
	URL     string
	Healthy bool
}

// ProbeResult is the outcome of one health probe, applied back to the
// registry as part of a cycle batch.
type ProbeResult struct {
	Index     int
	Healthy   bool
	LatencyMs int64
	CheckedAt string
}

// Registry is the process-wide shared state: the backend pool, the
// session-affinity map, and the round-robin cursor. All access goes
// through one RWMutex, and the lock is never held across network I/O.
type Registry struct {
	mu       sync.RWMutex
	backends []*record
	affinity map[string]string
	cursor   int
	hub      *stream.Hub
	logger   *slog.Logger
}

type record struct {
	url          string
	region       string
	healthy      bool
	responseTime *int64
	lastCheck    *string
	uptime       uint64
	downtime     uint64
	history      []*int64
}

// New builds a Registry from the configured backend pool. The pool is
// index-stable for the process lifetime; backends start unhealthy until
// their first successful probe.
func New(seeds []Seed, hub *stream.Hub, logger *slog.Logger) *Registry {
	backends := make([]*record, 0, len(seeds))
	for _, s := range seeds {
		region := s.Region
		if region == "" {
			region = "-"
		}
		backends = append(backends, &record{
			url:     s.URL,
			region:  region,
			history: make([]*int64, 0, historyCap),
		})
	}

	return &Registry{
		backends: backends,
		affinity: make(map[string]string),
		hub:      hub,
		logger:   logger,
	}
}

// Snapshot returns a deep copy of the backend pool under a read lock.
// A snapshot never exposes a partially-applied health cycle.
func (r *Registry) Snapshot() []BackendStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []BackendStatus {
	out := make([]BackendStatus, 0, len(r.backends))
	for _, b := range r.backends {
		st := BackendStatus{
			URL:      b.url,
			Region:   b.region,
			Healthy:  b.healthy,
			Uptime:   b.uptime,
			Downtime: b.downtime,
			History:  make([]*int64, len(b.history)),
		}
		if b.responseTime != nil {
			v := *b.responseTime
			st.ResponseTime = &v
		}
		if b.lastCheck != nil {
			v := *b.lastCheck
			st.LastCheck = &v
		}
		for i, h := range b.history {
			if h != nil {
				v := *h
				st.History[i] = &v
			}
		}
		out = append(out, st)
	}
	return out
}

// Targets lists the probe targets for one health cycle. The monitor
// calls this, releases the lock, and probes over the network.
func (r *Registry) Targets() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]Target, 0, len(r.backends))
	for i, b := range r.backends {
		targets = append(targets, Target{Index: i, URL: b.url, Healthy: b.healthy})
	}
	return targets
}

// Apply commits one health cycle's probe results as a single batch and
// publishes the resulting snapshot. Readers observe either the
// pre-cycle or the post-cycle state, never an interleaving.
func (r *Registry) Apply(results []ProbeResult) {
	r.mu.Lock()

	for _, res := range results {
		if res.Index < 0 || res.Index >= len(r.backends) {
			continue
		}
		b := r.backends[res.Index]

		checked := res.CheckedAt
		b.lastCheck = &checked

		if res.Healthy {
			latency := res.LatencyMs
			b.healthy = true
			b.responseTime = &latency
			b.uptime++
			b.history = append(b.history, &latency)
		} else {
			failed := int64(0)
			b.healthy = false
			b.responseTime = nil
			b.downtime++
			b.history = append(b.history, &failed)
		}

		if len(b.history) > historyCap {
			b.history = b.history[len(b.history)-historyCap:]
		}
	}

	payload, err := json.Marshal(r.snapshotLocked())
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("failed to marshal snapshot", slog.Any("err", err))
		return
	}
	r.hub.Broadcast(string(payload))
}

// Publish broadcasts the current snapshot outside a health cycle, e.g.
// so a fresh subscriber sees state immediately. Absent subscribers are
// not an error.
func (r *Registry) Publish() {
	payload, err := r.SnapshotJSON()
	if err != nil {
		r.logger.Error("failed to marshal snapshot", slog.Any("err", err))
		return
	}
	r.hub.Broadcast(string(payload))
}

// SnapshotJSON serializes the current snapshot.
func (r *Registry) SnapshotJSON() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}

// Pick routes one client identity to a backend URL, honoring a healthy
// affinity pin and falling back to round-robin over the healthy
// subsequence. The affinity map and cursor are mutated under the same
// lock as the health fields, so selections never race with a cycle
// being applied. The second return is false when no backend is healthy.
func (r *Registry) Pick(clientID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := make([]selector.Candidate, 0, len(r.backends))
	for _, b := range r.backends {
		candidates = append(candidates, selector.Candidate{URL: b.url, Healthy: b.healthy})
	}

	decision, ok := selector.Decide(candidates, r.affinity, r.cursor, clientID)
	if !ok {
		return "", false
	}

	r.cursor = decision.Cursor
	if decision.Pin {
		if _, exists := r.affinity[clientID]; exists || len(r.affinity) < maxAffinityEntries {
			r.affinity[clientID] = decision.URL
		}
	}

	return decision.URL, true
}

// AffinitySize reports the number of pinned client identities.
func (r *Registry) AffinitySize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.affinity)
}
