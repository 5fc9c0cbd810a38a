// Package config handles loading and parsing of configuration from YAML
// files and environment variables. It defines the application
// configuration structure including server settings, the backend pool,
// health check intervals, and logging levels. Malformed configuration
// degrades to defaults with an empty backend list instead of aborting
// startup.
package config
