// Package config loads, normalizes, and validates the TOML configuration
// shared by every reelforge worker invocation.
package config
