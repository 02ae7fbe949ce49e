// Package logging wraps log/slog with the handlers and structured attribute
// helpers shared by every worker entry point.
package logging
