// Package console renders the backend pool as a terminal table, redrawn
// after every health cycle. It subscribes to the same snapshot stream
// as the dashboard and never touches registry state.
package console
