// Package handler wires the request path together: derive the client
// identity, ask the registry for a backend, forward through the proxy,
// and map the failure modes to 503 (no backend) and 502 (forwarding
// failure). Metric events are emitted with non-blocking sends.
package handler
