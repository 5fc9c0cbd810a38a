package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type EventType string

const (
	EventRequestReceived   EventType = "request_received"
	EventBackendSelected   EventType = "backend_selected"
	EventResponseCompleted EventType = "response_completed"
	EventProbeCompleted    EventType = "probe_completed"
	EventHealthChanged     EventType = "health_changed"
)

// MetricEvent is one observation emitted from the request path or the
// health monitor. Producers send it with non-blocking semantics; a full
// buffer drops the event rather than slowing a request down.
type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Backend    string
	Duration   time.Duration
	StatusCode int
	Healthy    bool
}

// Collector aggregates metric events in a dedicated goroutine and
// mirrors them into Prometheus instruments.
type Collector struct {
	eventCh chan MetricEvent
	store   *store
	logger  *slog.Logger

	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	probesTotal      *prometheus.CounterVec
	responseDuration *prometheus.HistogramVec
	backendUp        *prometheus.GaugeVec
}

// NewCollector creates a Collector with the given event buffer size.
func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		eventCh:  make(chan MetricEvent, bufferSize),
		store:    newStore(),
		logger:   logger,
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_requests_total",
				Help: "Proxied requests completed, by backend and status code.",
			},
			[]string{"backend", "code"},
		),
		probesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_probes_total",
				Help: "Health probes performed, by backend and result.",
			},
			[]string{"backend", "result"},
		),
		responseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_response_duration_seconds",
				Help:    "Duration of proxied requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		backendUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulse_backend_up",
				Help: "Whether a backend passed its latest health probe.",
			},
			[]string{"backend"},
		),
	}
}

// EventChannel returns the send side of the event pipeline.
func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Start launches the processing goroutine.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("metrics collector started")
	defer c.logger.Info("metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.store.incrementRequests(event.Backend)

	case EventBackendSelected:
		c.store.recordSelection(event.Backend)

	case EventResponseCompleted:
		c.store.recordResponse(event.Backend, event.Duration, event.StatusCode)
		c.requestsTotal.WithLabelValues(event.Backend, strconv.Itoa(event.StatusCode)).Inc()
		c.responseDuration.WithLabelValues(event.Backend).Observe(event.Duration.Seconds())

	case EventProbeCompleted:
		c.store.updateHealth(event.Backend, event.Healthy)
		if event.Healthy {
			c.probesTotal.WithLabelValues(event.Backend, "success").Inc()
			c.backendUp.WithLabelValues(event.Backend).Set(1)
		} else {
			c.probesTotal.WithLabelValues(event.Backend, "failure").Inc()
			c.backendUp.WithLabelValues(event.Backend).Set(0)
		}

	case EventHealthChanged:
		c.store.updateHealth(event.Backend, event.Healthy)
	}
}

// drain flushes buffered events before shutdown so none are lost.
func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

// Snapshot returns the aggregated view of all backends.
func (c *Collector) Snapshot() Snapshot {
	return c.store.snapshot()
}

// Registry exposes the Prometheus registry backing the collector, for
// exposition via promhttp.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
