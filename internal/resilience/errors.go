package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrorKind classifies a provider failure. The set is closed; the retry
// loop only ever switches on these values.
type ErrorKind string

const (
	// KindTransient covers rate limits, 5xx responses, and timeouts. Retried.
	KindTransient ErrorKind = "TRANSIENT_PROVIDER_ERROR"
	// KindTerminal covers zero-results and not-found. A valid signal value.
	KindTerminal ErrorKind = "TERMINAL_PROVIDER_OUTCOME"
	// KindPermanent covers bad requests and auth denials. Not retried.
	KindPermanent ErrorKind = "PERMANENT_PROVIDER_ERROR"
)

// ProviderError is the error type provider clients return so the adapter
// can classify failures without inspecting message text.
type ProviderError struct {
	Kind       ErrorKind
	Code       string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Code)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewTransientError marks a failure as safe to retry.
func NewTransientError(code string, statusCode int, err error) *ProviderError {
	return &ProviderError{Kind: KindTransient, Code: code, StatusCode: statusCode, Err: err}
}

// NewPermanentError marks a failure that must not be retried.
func NewPermanentError(code string, statusCode int, err error) *ProviderError {
	return &ProviderError{Kind: KindPermanent, Code: code, StatusCode: statusCode, Err: err}
}

// NewTerminalOutcome reports a provider answer such as ZERO_RESULTS.
func NewTerminalOutcome(code string) *ProviderError {
	return &ProviderError{Kind: KindTerminal, Code: code}
}

// HTTPStatusError classifies a non-200 HTTP response by status code.
func HTTPStatusError(statusCode int) *ProviderError {
	code := fmt.Sprintf("HTTP_%d", statusCode)
	if IsTransientHTTPStatus(statusCode) {
		return NewTransientError(code, statusCode, nil)
	}
	return NewPermanentError(code, statusCode, nil)
}

// Classify returns the kind and short code for err. Timeouts and dropped
// connections are transient; anything unrecognized is permanent.
func Classify(err error) (ErrorKind, string) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, pe.Code
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient, "TIMEOUT"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient, "TIMEOUT"
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return KindTransient, "CONNECTION"
	}

	return KindPermanent, "ERROR"
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
