package selector

import (
	"crypto/md5"
	"encoding/hex"
)

// Candidate is the selector's view of one backend: its URL and current
// liveness, in registry order.
type Candidate struct {
	URL     string
	Healthy bool
}

// Decision is the outcome of one selection.
type Decision struct {
	// URL of the chosen backend.
	URL string
	// Sticky is true when an existing affinity entry was honored.
	Sticky bool
	// Cursor is the round-robin cursor after the decision. Unchanged
	// on a sticky hit.
	Cursor int
	// Pin is true when the caller should store clientID -> URL in the
	// affinity map, overwriting any stale entry.
	Pin bool
}

// Identity derives the affinity key for a client from its source IP and
// User-Agent. MD5 here is a stable bucketing hash, not a security
// boundary.
func Identity(ip, userAgent string) string {
	sum := md5.Sum([]byte(ip + userAgent))
	return hex.EncodeToString(sum[:])
}

// Decide maps a client identity to a backend URL given the current
// registry state. It is a pure function: the registry invokes it under
// its own write lock and applies the returned cursor and pin.
//
// An affinity entry pointing at a healthy backend wins outright.
// Otherwise the cursor advances over the healthy subsequence in
// registry order; with no healthy backend the second return is false.
func Decide(backends []Candidate, affinity map[string]string, cursor int, clientID string) (Decision, bool) {
	if pinned, ok := affinity[clientID]; ok {
		for _, c := range backends {
			if c.URL == pinned && c.Healthy {
				return Decision{URL: c.URL, Sticky: true, Cursor: cursor}, true
			}
		}
	}

	var healthy []string
	for _, c := range backends {
		if c.Healthy {
			healthy = append(healthy, c.URL)
		}
	}

	if len(healthy) == 0 {
		return Decision{}, false
	}

	next := (cursor + 1) % len(healthy)

	return Decision{
		URL:    healthy[next],
		Cursor: next,
		Pin:    true,
	}, true
}
