package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrNetwork matches every remote fetch failure (transport, status, decode)
	ErrNetwork = errors.New("network request failed")

	// ErrUnauthorized indicates the API key was rejected
	ErrUnauthorized = errors.New("api key is invalid")

	// ErrGameNotFound indicates the requested game does not exist upstream
	ErrGameNotFound = errors.New("game not found")

	// ErrStoreClosed is returned by a cache store after Close
	ErrStoreClosed = errors.New("cache store is closed")

	// ErrInvalidPage is returned for a search page below 1
	ErrInvalidPage = errors.New("page must be 1 or greater")

	// ErrUnknownBackend indicates an unsupported cache backend name
	ErrUnknownBackend = errors.New("unknown cache backend")
)

// TransportError wraps a failure to complete the HTTP exchange at all
// (dial, TLS, timeout, context cancellation, reading the body).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrNetwork }

// HTTPStatusError is returned for any non-2xx response.
type HTTPStatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status code: %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status code: %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *HTTPStatusError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return true
	case ErrUnauthorized:
		return e.StatusCode == 401 || e.StatusCode == 403
	case ErrGameNotFound:
		return e.StatusCode == 404
	}
	return false
}

// DecodeError indicates the response body did not match the expected schema.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to parse response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrNetwork }

// CacheIOError wraps a local store read or write failure.
type CacheIOError struct {
	Op  string
	Err error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }
