package monitor

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/trandh/pulse/internal/metrics"
	"github.com/trandh/pulse/internal/registry"
)

const userAgent = "pulse-health-monitor/1.0"

// Monitor drives the health cycle: snapshot the probe targets, probe
// every backend concurrently with the registry lock released, then
// apply all results as one batch and let the registry publish.
type Monitor struct {
	registry  *registry.Registry
	collector *metrics.Collector
	client    *http.Client
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a Monitor. The probe timeout bounds each outbound health
// check; the interval separates cycles.
func New(reg *registry.Registry, collector *metrics.Collector, interval, probeTimeout time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		registry:  reg,
		collector: collector,
		client: &http.Client{
			Timeout: probeTimeout,
		},
		interval: interval,
		logger:   logger,
	}
}

// Run probes all backends on a fixed period until ctx is cancelled.
// An initial cycle runs immediately so the pool is usable before the
// first tick.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("health monitor started",
		slog.Duration("interval", m.interval))
	defer m.logger.Info("health monitor stopped")

	m.RunCycle(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle executes exactly one probe-and-apply cycle.
func (m *Monitor) RunCycle(ctx context.Context) {
	targets := m.registry.Targets()
	if len(targets) == 0 {
		return
	}

	results := make([]registry.ProbeResult, len(targets))

	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t registry.Target) {
			defer wg.Done()
			results[i] = m.probe(ctx, t)
		}(i, t)
	}
	wg.Wait()

	for i, t := range targets {
		m.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventProbeCompleted,
			Timestamp: time.Now(),
			Backend:   t.URL,
			Healthy:   results[i].Healthy,
		})

		if results[i].Healthy != t.Healthy {
			if results[i].Healthy {
				m.logger.Info("backend is back up", slog.String("backend", t.URL))
			} else {
				m.logger.Warn("backend is down", slog.String("backend", t.URL))
			}
			m.emitEvent(metrics.MetricEvent{
				Type:      metrics.EventHealthChanged,
				Timestamp: time.Now(),
				Backend:   t.URL,
				Healthy:   results[i].Healthy,
			})
		}
	}

	m.registry.Apply(results)
}

// probe issues one health check. Every failure mode, transport errors
// included, counts as an unhealthy data point; a panic in one probe
// must not take down the rest of the cycle.
func (m *Monitor) probe(ctx context.Context, t registry.Target) (result registry.ProbeResult) {
	result = registry.ProbeResult{Index: t.Index}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("probe panicked",
				slog.String("backend", t.URL),
				slog.Any("panic", r))
			result.Healthy = false
			result.CheckedAt = time.Now().Format("15:04:05")
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL(t.URL), nil)
	if err != nil {
		result.CheckedAt = time.Now().Format("15:04:05")
		return result
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	res, err := m.client.Do(req)
	latency := time.Since(start).Milliseconds()
	result.CheckedAt = time.Now().Format("15:04:05")

	if err != nil {
		return result
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		result.Healthy = true
		result.LatencyMs = latency
	}

	return result
}

// emitEvent hands an observation to the collector without ever
// blocking the health cycle; a full buffer drops the event.
func (m *Monitor) emitEvent(event metrics.MetricEvent) {
	if m.collector == nil {
		return
	}

	select {
	case m.collector.EventChannel() <- event:
	default:
	}
}

// probeURL appends the health path to a backend base URL without
// doubling the slash.
func probeURL(base string) string {
	if strings.HasSuffix(base, "/") {
		return base + "healthz"
	}
	return base + "/healthz"
}
