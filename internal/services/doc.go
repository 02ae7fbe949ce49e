// Package services defines the shared error taxonomy and request context
// helpers used by the external provider adapters and the stage engine.
package services
