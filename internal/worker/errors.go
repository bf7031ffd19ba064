package worker

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers handlers wrap their failures with. The marker decides the
// "kind" recorded in the failure payload; transient is the default for
// unmarked errors.
var (
	ErrValidation = errors.New("validation error")
	ErrExternal   = errors.New("external service error")
	ErrTimeout    = errors.New("timeout")
	ErrTransient  = errors.New("transient failure")
)

// Wrap tags err with a classification marker and operation context. The
// marker should be one of the exported sentinels above.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to the failure kind stored with the work item.
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrExternal):
		return "external"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "transient"
	}
}

// FailureDetail shapes the structured error detail recorded on Fail.
func FailureDetail(err error) map[string]any {
	return map[string]any{
		"kind":    Classify(err),
		"message": err.Error(),
	}
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "handler failure"
	}
	return strings.Join(parts, ": ")
}
