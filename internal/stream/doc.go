// Package stream implements the broadcast primitive that pushes backend
// state snapshots to dashboard and console subscribers. Delivery is
// best-effort: lagging subscribers drop messages and observe a gap
// counter instead of blocking the health cycle.
package stream
