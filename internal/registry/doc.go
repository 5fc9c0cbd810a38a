// Package registry holds the shared mutable state of the balancer: the
// ordered backend pool with health fields and probe history, the
// session-affinity map, and the round-robin cursor. One RWMutex guards
// everything; snapshots are deep copies and health cycles commit as a
// single batch followed by a broadcast to the state stream.
package registry
