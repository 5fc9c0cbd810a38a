// Package selector implements the backend selection algorithm: session
// affinity first, round-robin over the currently-healthy backends as
// fallback. Affinity is soft; a pin to a dead backend falls through to
// round-robin and is re-pinned to the newly chosen backend.
//
// The round-robin cursor indexes the healthy subsequence, not the full
// backend list, so its meaning shifts as backends flap. That is an
// accepted approximation, not a strict rotation guarantee.
package selector
