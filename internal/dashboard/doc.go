// Package dashboard serves the live status page and its Server-Sent
// Events feed. The page is a static consumer of the snapshot stream;
// the events endpoint sends the current registry state on subscribe and
// every published snapshot afterwards.
package dashboard
