package domain

import (
	"context"
	"errors"
	"strings"
)

// retryableFragments are substrings that mark an upstream error as
// transient. Matching is intentionally loose: the LLM gateway and the
// HTTP stack both stringify their failures.
var retryableFragments = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"rate limit",
	"too many requests",
	"429",
	"502",
	"503",
	"504",
	"econnrefused",
	"econnreset",
	"connection refused",
	"connection reset",
	"broken pipe",
	"temporarily unavailable",
	"no such host",
	"eof",
}

// IsRetryable reports whether an executor error should be routed
// through the retry queue rather than permanently failing the
// operation. Context cancellation is not retryable: someone asked us
// to stop.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCircuitOpen) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range retryableFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// ErrorCode maps an executor error onto a short stable code for
// event rows and metric rows.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "CIRCUIT_OPEN"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case IsRetryable(err):
		return "TRANSIENT"
	default:
		return "GENERATION_ERROR"
	}
}
