// Package monitor runs the periodic health-polling loop. Each cycle
// reads the probe targets under the registry's read lock, releases the
// lock, issues one GET per backend to its /healthz endpoint with a
// bounded timeout, and commits the results back to the registry as a
// single batch. Probe failures are data points, never errors; the loop
// only stops when its context is cancelled.
package monitor
