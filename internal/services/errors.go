package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers carried in the error chain so that callers can decide
// between leaving an item for a later run and failing it outright without
// inspecting message text.
var (
	ErrTransient          = errors.New("transient failure")
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
	ErrNotFound           = errors.New("not found")
	ErrSafetyBlocked      = errors.New("safety blocked")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrPoolEmpty          = errors.New("no source asset configured")
)

// Wrap builds an error that includes stage and operation context while tagging
// it with the provided marker. A nil marker defaults to ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a stage error should be retried on a later
// sweep. Validation, configuration, safety and credit failures are terminal;
// everything else is assumed transient.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrSafetyBlocked),
		errors.Is(err, ErrInsufficientCredit),
		errors.Is(err, ErrPoolEmpty):
		return false
	default:
		return true
	}
}

// Detail describes a classified service error for logging and persistence.
type Detail struct {
	Kind      string
	Message   string
	Retryable bool
}

// Details extracts the classification and the human-readable message from a
// stage error.
func Details(err error) Detail {
	if err == nil {
		return Detail{}
	}
	return Detail{
		Kind:      kindOf(err),
		Message:   strings.TrimSpace(err.Error()),
		Retryable: IsRetryable(err),
	}
}

func kindOf(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSafetyBlocked):
		return "safety_blocked"
	case errors.Is(err, ErrInsufficientCredit):
		return "insufficient_credit"
	case errors.Is(err, ErrPoolEmpty):
		return "pool_empty"
	default:
		return "transient"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
