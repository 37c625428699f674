package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Errors returned by the classifier. Transport failures wrap exactly one of
// them together with the underlying error.
var (
	// ErrRateLimited indicates HTTP 429 from the endpoint.
	ErrRateLimited = errors.New("model API rate limit exceeded")

	// ErrUnavailable indicates HTTP 503 from the endpoint.
	ErrUnavailable = errors.New("model API temporarily unavailable")

	// ErrNetwork indicates the exchange broke off in transit: no response
	// arrived, or the body timed out or was cut short after the headers.
	ErrNetwork = errors.New("network error communicating with model API")

	// ErrAuth indicates a missing or rejected API key.
	ErrAuth = errors.New("model API authentication error")

	// ErrAPI indicates any other non-success HTTP status.
	ErrAPI = errors.New("model API error")

	// ErrInvalidResponse indicates the completion was not the expected JSON.
	ErrInvalidResponse = errors.New("invalid response from model API")
)

// StatusError carries the HTTP status of a failed request.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %v", e.StatusCode, http.StatusText(e.StatusCode), e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying: rate limiting, service
// unavailability or a network fault.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrNetwork)
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}

// classifyError maps a failed completion request onto the sentinel errors.
// status is the HTTP status observed by the transport, 0 if none arrived.
func classifyError(ctx context.Context, err error, status int) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	switch {
	case status == 0 || isNetworkFault(err):
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, &StatusError{status, err})
	case status == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %w", ErrUnavailable, &StatusError{status, err})
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrAuth, &StatusError{status, err})
	case status < 200 || status >= 300:
		return fmt.Errorf("%w: %w", ErrAPI, &StatusError{status, err})
	default:
		// A 2xx whose body could not be decoded.
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
}

// isNetworkFault reports whether err is a transport failure rather than a
// bad payload. It catches faults that happen while reading a body whose
// status line already arrived.
func isNetworkFault(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED)
}
