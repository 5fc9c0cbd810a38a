// Package metrics collects request and health observations for the
// balancer.
//
// Producers emit MetricEvent values over a buffered channel with
// non-blocking sends, so the request path never stalls on metrics. A
// dedicated goroutine aggregates per-backend counts, status codes and
// response-time percentiles (P50/P95/P99) in memory, and mirrors
// completions and probe results into Prometheus instruments exposed
// via promhttp. Every probe updates the backend gauge and result
// counter, so a backend that never comes up still has series. Nothing
// is persisted.
package metrics
