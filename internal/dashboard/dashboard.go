package dashboard

import (
	"embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/trandh/pulse/internal/registry"
	"github.com/trandh/pulse/internal/stream"
)

//go:embed assets
var assets embed.FS

const keepAliveInterval = 15 * time.Second

// Handler serves the dashboard page and its event stream.
type Handler struct {
	registry *registry.Registry
	hub      *stream.Hub
	logger   *slog.Logger
}

func NewHandler(reg *registry.Registry, hub *stream.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		registry: reg,
		hub:      hub,
		logger:   logger,
	}
}

// Page serves the static dashboard HTML.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	page, err := assets.ReadFile("assets/dashboard.html")
	if err != nil {
		http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// Events serves the snapshot stream over Server-Sent Events: the
// current state immediately on subscribe, then one JSON array per
// health cycle. A subscriber that lags gets a comment marking the gap
// instead of an error.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	h.logger.Debug("event stream subscriber connected",
		slog.String("remote", r.RemoteAddr))
	defer h.logger.Debug("event stream subscriber disconnected",
		slog.String("remote", r.RemoteAddr))

	initial, err := h.registry.SnapshotJSON()
	if err != nil {
		http.Error(w, "snapshot unavailable", http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", initial)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case payload, open := <-sub.C:
			if !open {
				return
			}
			if sub.Lagged() > 0 {
				fmt.Fprint(w, ": missed message\n\n")
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
