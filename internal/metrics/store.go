package metrics

import (
	"sort"
	"sync"
	"time"
)

// responseWindow caps the retained response durations per backend.
const responseWindow = 1000

type backendStats struct {
	requests    int64
	selections  int64
	healthy     bool
	responses   []time.Duration
	statusCodes map[int]int64
}

// store is the in-memory aggregate behind the collector. The collector
// goroutine is the only writer; Snapshot readers take the lock.
type store struct {
	mu        sync.RWMutex
	backends  map[string]*backendStats
	startTime time.Time
}

// Snapshot is the JSON view served by the metrics handler.
type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	Uptime        time.Duration             `json:"uptime"`
	Backends      map[string]BackendMetrics `json:"backends"`
}

type BackendMetrics struct {
	Requests    int64         `json:"requests"`
	Selections  int64         `json:"selections"`
	Healthy     bool          `json:"healthy"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func newStore() *store {
	return &store{
		backends:  make(map[string]*backendStats),
		startTime: time.Now(),
	}
}

func (s *store) stats(backend string) *backendStats {
	bs, ok := s.backends[backend]
	if !ok {
		bs = &backendStats{statusCodes: make(map[int]int64)}
		s.backends[backend] = bs
	}
	return bs
}

func (s *store) incrementRequests(backend string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats(backend).requests++
}

func (s *store) recordSelection(backend string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats(backend).selections++
}

func (s *store) recordResponse(backend string, duration time.Duration, statusCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bs := s.stats(backend)
	bs.responses = append(bs.responses, duration)
	if len(bs.responses) > responseWindow {
		bs.responses = bs.responses[1:]
	}
	bs.statusCodes[statusCode]++
}

func (s *store) updateHealth(backend string, healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats(backend).healthy = healthy
}

func (s *store) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(s.startTime),
		Backends: make(map[string]BackendMetrics, len(s.backends)),
	}

	for backend, bs := range s.backends {
		snap.TotalRequests += bs.requests

		bm := BackendMetrics{
			Requests:    bs.requests,
			Selections:  bs.selections,
			Healthy:     bs.healthy,
			StatusCodes: make(map[int]int64, len(bs.statusCodes)),
		}
		for code, n := range bs.statusCodes {
			bm.StatusCodes[code] = n
		}

		if len(bs.responses) > 0 {
			sorted := make([]time.Duration, len(bs.responses))
			copy(sorted, bs.responses)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

			bm.AvgResponse = average(sorted)
			bm.P50Response = percentile(sorted, 0.50)
			bm.P95Response = percentile(sorted, 0.95)
			bm.P99Response = percentile(sorted, 0.99)
		}

		snap.Backends[backend] = bm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
