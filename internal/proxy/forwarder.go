package proxy

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// Forwarder translates inbound requests into outbound calls against a
// selected backend. One reverse proxy is built per backend at startup;
// the pool is static for the process lifetime.
type Forwarder struct {
	proxies map[string]*httputil.ReverseProxy
	logger  *slog.Logger
}

// New builds a Forwarder for the given backend base URLs. URLs that do
// not parse are skipped with a warning; routing to them would fail at
// selection time anyway.
func New(backendURLs []string, logger *slog.Logger) *Forwarder {
	f := &Forwarder{
		proxies: make(map[string]*httputil.ReverseProxy, len(backendURLs)),
		logger:  logger,
	}

	for _, raw := range backendURLs {
		target, err := url.Parse(raw)
		if err != nil {
			logger.Warn("skipping unparseable backend URL",
				slog.String("url", raw),
				slog.String("error", err.Error()))
			continue
		}
		f.proxies[raw] = f.newProxy(target)
	}

	return f
}

func (f *Forwarder) newProxy(target *url.URL) *httputil.ReverseProxy {
	p := httputil.NewSingleHostReverseProxy(target)

	director := p.Director
	p.Director = func(req *http.Request) {
		director(req)
		// The backend sees its own hostname, not the balancer's.
		req.Host = target.Host
		req.Header.Set("Referer", target.String())
		// The forwarder does not re-encode bodies, so never ask the
		// backend for a compressed response.
		req.Header.Del("Accept-Encoding")
	}

	p.ModifyResponse = func(res *http.Response) error {
		// Stripped so the response can be embedded by the local client.
		res.Header.Del("Content-Security-Policy")
		res.Header.Del("X-Frame-Options")
		return nil
	}

	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		f.logger.Warn("upstream forwarding failure",
			slog.String("backend", target.String()),
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
		http.Error(w, fmt.Sprintf("Bad Gateway: %v", err), http.StatusBadGateway)
	}

	return p
}

// Forward streams the request through to targetURL and the response
// back to the caller. Transport failures surface as 502 with the
// underlying error text.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, targetURL string) {
	p, ok := f.proxies[targetURL]
	if !ok {
		// Unreachable with a static pool, but the mapping stays total.
		http.Error(w, "Bad Gateway: unknown backend", http.StatusBadGateway)
		return
	}

	p.ServeHTTP(w, r)
}
