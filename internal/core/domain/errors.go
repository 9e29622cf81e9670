package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity, dataset or index does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates a missing or wrong admin token.
	ErrUnauthorized = errors.New("unauthorized")

	// Catalog and index errors.

	// ErrConfig indicates the manifest or catalog cannot be resolved.
	// It is fatal at startup and logged at runtime, where the previous
	// catalog stays in effect.
	ErrConfig = errors.New("configuration error")

	// ErrFetch indicates a dataset could not be retrieved from upstream.
	ErrFetch = errors.New("fetch error")

	// ErrBuild indicates a generation build did not complete.
	// The previous generation stays live.
	ErrBuild = errors.New("build error")

	// ErrIndexNotReady indicates no complete generation is promoted yet.
	ErrIndexNotReady = errors.New("index not ready")

	// Query errors.

	// ErrBackendUnavailable indicates the search backend failed a query.
	// Batch callers see it per item.
	ErrBackendUnavailable = errors.New("search backend unavailable")

	// ErrUnknownAlgorithm indicates a scoring algorithm name is not registered.
	ErrUnknownAlgorithm = errors.New("unknown scoring algorithm")
)

// ConfigErrorf wraps a formatted message with ErrConfig.
func ConfigErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// BuildErrorf wraps a formatted message with ErrBuild.
func BuildErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBuild, fmt.Sprintf(format, args...))
}

// FetchError describes a failed upstream retrieval.
type FetchError struct {
	// URL is the location that failed.
	URL string

	// StatusCode is the HTTP status, zero for non-HTTP failures.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return "fetch " + e.URL
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFetch) hold for every FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// Temporary reports whether a retry may succeed.
// Transport failures, throttling and server errors are temporary;
// other HTTP statuses (404, 403, ...) are not.
func (e *FetchError) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsTemporary reports whether err is worth retrying.
// Errors that are not FetchErrors are treated as temporary.
func IsTemporary(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Temporary()
	}
	return !errors.Is(err, ErrConfig) && !errors.Is(err, ErrInvalidInput)
}
