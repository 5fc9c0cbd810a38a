package main

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/trandh/pulse/internal/dashboard"
	"github.com/trandh/pulse/internal/handler"
	"github.com/trandh/pulse/internal/metrics"
)

// setupRouter reserves the management paths and routes everything else
// to the balancer. CORS is permissive so the dashboard's event stream
// can be consumed from anywhere.
func setupRouter(proxyHandler *handler.ProxyHandler, dash *dashboard.Handler, collector *metrics.Collector) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/load-balancer/dashboard", dash.Page)
	mux.HandleFunc("/load-balancer/events", dash.Events)
	mux.HandleFunc("/load-balancer/metrics", collector.Handler())
	mux.Handle("/metrics", collector.PromHandler())
	mux.Handle("/", proxyHandler)

	return cors.AllowAll().Handler(mux)
}
