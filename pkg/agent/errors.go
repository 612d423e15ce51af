package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ParseError marks a model response that matched neither a final answer nor
// a single tool invocation. One corrective re-prompt is allowed before it
// becomes session-fatal.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed model action: %s", e.Reason)
}

// ModelCallError wraps a failed model API call so retry exhaustion is
// distinguishable in the result record.
type ModelCallError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed after %d attempts (%s): %v", e.Attempts, e.Provider, e.Err)
}

func (e *ModelCallError) Unwrap() error {
	return e.Err
}

// IsRetryableError reports whether a model call failure is worth retrying:
// transient network failures, rate limits, and server-side errors.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{
		"429", "rate limit", "overloaded",
		"500", "502", "503", "504",
		"connection reset", "connection refused", "EOF",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
