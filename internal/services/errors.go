package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyReviewed = errors.New("already reviewed")
	ErrBusy            = errors.New("operation in progress")
	ErrValidation      = errors.New("validation error")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrTransport       = errors.New("transport error")
	ErrTimeout         = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short stable label for the marker carried by err. It is used
// for metrics labels and CLI output.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyReviewed):
		return "already_reviewed"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "transport"
	}
}

// Retryable reports whether a caller may reasonably retry the operation that
// produced err. The engine itself never retries.
func Retryable(err error) bool {
	switch Kind(err) {
	case "transport", "timeout", "busy":
		return true
	default:
		return false
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "engine failure"
	}
	return strings.Join(parts, ": ")
}
