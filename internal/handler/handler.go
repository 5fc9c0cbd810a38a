package handler

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/trandh/pulse/internal/metrics"
	"github.com/trandh/pulse/internal/proxy"
	"github.com/trandh/pulse/internal/registry"
	"github.com/trandh/pulse/internal/selector"
)

// ProxyHandler is the fallback route: everything that is not a reserved
// management path is balanced across the backend pool.
type ProxyHandler struct {
	logger    *slog.Logger
	registry  *registry.Registry
	forwarder *proxy.Forwarder
	collector *metrics.Collector
}

func NewProxyHandler(logger *slog.Logger, reg *registry.Registry, forwarder *proxy.Forwarder, collector *metrics.Collector) *ProxyHandler {
	return &ProxyHandler{
		logger:    logger,
		registry:  reg,
		forwarder: forwarder,
		collector: collector,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)
	clientID := selector.Identity(clientIP, r.UserAgent())

	h.logger.Debug("received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))

	target, ok := h.registry.Pick(clientID)
	if !ok {
		h.logger.Warn("no healthy backends available", slog.String("client", clientIP))
		http.Error(w, "No backend servers alive", http.StatusServiceUnavailable)
		return
	}

	h.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		Timestamp: time.Now(),
		Backend:   target,
	})
	h.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventBackendSelected,
		Timestamp: time.Now(),
		Backend:   target,
	})

	h.logger.Info("forwarding to backend",
		slog.String("client", clientIP),
		slog.String("backend", target),
		slog.String("path", r.URL.Path))

	start := time.Now()
	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	h.forwarder.Forward(wrapped, r, target)

	h.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		Backend:    target,
		Duration:   time.Since(start),
		StatusCode: wrapped.statusCode,
	})
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port; use it as-is so such clients
		// keep distinct identities.
		return r.RemoteAddr
	}
	return host
}

func (h *ProxyHandler) emitEvent(event metrics.MetricEvent) {
	if h.collector == nil {
		return
	}

	select {
	case h.collector.EventChannel() <- event:
	default:
	}
}
