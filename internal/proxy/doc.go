// Package proxy implements request forwarding to backend servers. It
// preserves method, path and query, rewrites the Host header to the
// backend's hostname, sets a Referer to the backend base URL, strips
// Accept-Encoding on the way out and the frame/CSP security headers on
// the way back, and streams both bodies without buffering.
package proxy
