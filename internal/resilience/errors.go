package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Class categorizes a collaborator failure for retry decisions.
type Class string

const (
	// ClassTransient marks failures that are safe to retry (network, 5xx).
	ClassTransient Class = "transient"
	// ClassPermanent marks failures that no retry will fix (bad input, auth).
	ClassPermanent Class = "permanent"
	// ClassRateLimited marks failures caused by throttling (429, limiter
	// wait timeout). Retried like transient but reported separately.
	ClassRateLimited Class = "rate_limited"
)

// TransientError wraps an error that is safe to retry (e.g., 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// PermanentError wraps an error that must not be retried. The pipeline
// short-circuits the affected opportunity straight to its failed stage.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps an error as permanent.
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

// RateLimitError wraps a throttling failure: an explicit 429/retry-after from
// a collaborator, or a limiter wait that timed out before a token was free.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// NewRateLimitError wraps an error as rate-limited.
func NewRateLimitError(err error) *RateLimitError {
	return &RateLimitError{Err: err}
}

// Classify maps an error to its failure class. Unrecognized errors are
// permanent: retrying a call we cannot identify as safe risks duplicate
// side effects.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return ClassRateLimited
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return ClassPermanent
	}
	if IsTransient(err) {
		return ClassTransient
	}
	return ClassPermanent
}

// Retryable reports whether an error's class permits another attempt.
func Retryable(err error) bool {
	switch Classify(err) {
	case ClassTransient, ClassRateLimited:
		return true
	}
	return false
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry. 429 is classified
// separately as rate-limited.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
