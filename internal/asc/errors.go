package asc

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingData signals the API reported success but omitted a field
	// this client requires (e.g. no certificate content on creation). It is
	// a contract violation and is never retried or defaulted.
	ErrMissingData = errors.New("missing data in response")

	// ErrNotFound signals an unresolvable resource, such as a bundle id
	// that is not registered in App Store Connect.
	ErrNotFound = errors.New("not found")
)

// Category buckets API errors the way callers branch on them.
type Category string

const (
	CategoryBadRequest   Category = "bad_request"
	CategoryAuth         Category = "auth"
	CategoryNotFound     Category = "not_found"
	CategoryConflict     Category = "conflict"
	CategoryUndocumented Category = "undocumented"
)

// APIError is a typed error response from App Store Connect. Detail carries
// the server-supplied text verbatim.
type APIError struct {
	StatusCode int
	Code       string
	Title      string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("app store connect: %d %s: %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("app store connect: %d %s", e.StatusCode, e.Title)
}

// Category classifies the error by HTTP status.
func (e *APIError) Category() Category {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CategoryBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return CategoryAuth
	case http.StatusNotFound:
		return CategoryNotFound
	case http.StatusConflict:
		return CategoryConflict
	}
	return CategoryUndocumented
}

// IsRetryableStatus reports whether an HTTP status is worth retrying:
// 429 or any 5xx.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// IsRetryable reports whether err is an APIError with a retryable status.
// Transport errors are handled by the callers' own retry policies.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return IsRetryableStatus(apiErr.StatusCode)
	}
	return false
}
