package appstore

import (
	"errors"
	"net/http"
)

// Sentinel errors for upstream metadata operations.
var (
	// ErrUpstream indicates the upstream API rejected the request.
	ErrUpstream = errors.New("upstream request failed")
	// ErrCreditsExhausted indicates the caller's upstream account has no credits left.
	ErrCreditsExhausted = errors.New("not enough upstream credits")
	// ErrProviderUnavailable indicates the upstream API could not be reached or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("upstream provider unavailable")
	// ErrInvalidResponse indicates the upstream response could not be decoded.
	ErrInvalidResponse = errors.New("invalid upstream response")
	// ErrMissingAPIKey indicates no upstream API key was supplied.
	ErrMissingAPIKey = errors.New("api key is required")
)

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	KindUpstream         ErrorKind = "upstream_error"
	KindCreditsExhausted ErrorKind = "credits_exhausted"
	KindUnavailable      ErrorKind = "unavailable"
	KindInvalidResponse  ErrorKind = "invalid_response"
	KindUnknown          ErrorKind = "unknown"
)

// Error provides detailed error information from the upstream API.
type Error struct {
	Provider   string // Provider that generated the error
	StatusCode int    // HTTP status returned by the provider, 0 if none
	Code       string // Error code from the provider
	Message    string // Human-readable error message
	Err        error  // Underlying sentinel
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind returns the classification of the error.
func (e *Error) Kind() ErrorKind {
	return KindOf(e)
}

// KindOf classifies any error returned by a Provider.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCreditsExhausted):
		return KindCreditsExhausted
	case errors.Is(err, ErrProviderUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrInvalidResponse):
		return KindInvalidResponse
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	default:
		return KindUnknown
	}
}

// HTTPStatus maps an upstream failure to the status reported in export
// diagnostics. Exhausted credits map to 402, everything else to 502.
func HTTPStatus(err error) int {
	if KindOf(err) == KindCreditsExhausted {
		return http.StatusPaymentRequired
	}
	return http.StatusBadGateway
}

// ErrorCode returns the provider error code when err is an *Error.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ErrorMessage returns the provider message when err is an *Error, else err.Error().
func ErrorMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
