// Package logger configures structured logging for the whole process.
// It wraps log/slog and picks a JSON or text handler based on the
// runtime environment.
package logger
