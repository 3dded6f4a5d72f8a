// Package errors defines the typed errors surfaced by the service layer and
// their HTTP status mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies a ServiceError.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindQuery            Kind = "query"
	KindStore            Kind = "store"
	KindNotFound         Kind = "not_found"
	KindMethodNotAllowed Kind = "method_not_allowed"
	KindForbidden        Kind = "forbidden"
	KindRateLimited      Kind = "rate_limited"
	KindInternal         Kind = "internal"
)

// ServiceError is an error with a client-facing message and HTTP status.
type ServiceError struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Err        error
	Details    map[string]any
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a diagnostic key/value pair.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(kind Kind, status int, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, HTTPStatus: status, Err: err}
}

// Validation reports a missing or invalid field on a write.
func Validation(message string, err error) *ServiceError {
	return newError(KindValidation, http.StatusBadRequest, message, err)
}

// Query reports malformed query parameters.
func Query(message string, err error) *ServiceError {
	return newError(KindQuery, http.StatusBadRequest, message, err)
}

// Store reports a persistence failure.
func Store(message string, err error) *ServiceError {
	return newError(KindStore, http.StatusInternalServerError, message, err)
}

// NotFound reports an unknown route or resource.
func NotFound(message string) *ServiceError {
	return newError(KindNotFound, http.StatusNotFound, message, nil)
}

// MethodNotAllowed reports a known route hit with the wrong method.
func MethodNotAllowed(message string) *ServiceError {
	return newError(KindMethodNotAllowed, http.StatusMethodNotAllowed, message, nil)
}

// Forbidden reports a request rejected by policy, such as CORS.
func Forbidden(message string) *ServiceError {
	return newError(KindForbidden, http.StatusForbidden, message, nil)
}

// RateLimitExceeded reports a client over its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(KindRateLimited, http.StatusTooManyRequests,
		fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window), nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return newError(KindInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError returns the first ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// IsKind reports whether err carries a ServiceError of the given kind.
func IsKind(err error, kind Kind) bool {
	se := GetServiceError(err)
	return se != nil && se.Kind == kind
}

// HTTPStatus maps err to a status code; unknown errors are 500.
func HTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
