// Package notifications delivers pipeline event notifications through
// ntfy.sh topics. When no topic is configured a noop implementation is
// used so callers never need nil checks.
package notifications
