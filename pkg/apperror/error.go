// Package apperror defines the typed errors services return and the echo
// handler that renders them.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an error with an HTTP status and a stable machine-readable code.
// Internal is logged but never sent to the client.
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
	Details    map[string]any
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Internal
}

// Is matches any *Error with the same status and code, so
// errors.Is(err, ErrDatabase) holds for copies made by the With methods.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.HTTPStatus == t.HTTPStatus
}

func (e *Error) clone() *Error {
	c := *e
	return &c
}

// WithInternal returns a copy carrying the underlying cause.
func (e *Error) WithInternal(err error) *Error {
	c := e.clone()
	c.Internal = err
	return c
}

// WithMessage returns a copy with a different client-facing message.
func (e *Error) WithMessage(message string) *Error {
	c := e.clone()
	c.Message = message
	return c
}

// WithDetails returns a copy with structured details, e.g. per-field
// validation messages.
func (e *Error) WithDetails(details map[string]any) *Error {
	c := e.clone()
	c.Details = details
	return c
}

// New creates an application error.
func New(status int, code, message string) *Error {
	return &Error{HTTPStatus: status, Code: code, Message: message}
}

var (
	ErrUnauthorized = New(http.StatusUnauthorized, "unauthorized", "Authentication required")
	ErrInvalidToken = New(http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
	ErrMissingToken = New(http.StatusUnauthorized, "missing_token", "Missing authorization token")
	ErrForbidden    = New(http.StatusForbidden, "forbidden", "Access denied")

	ErrNotFound     = New(http.StatusNotFound, "not_found", "Resource not found")
	ErrUserNotFound = New(http.StatusNotFound, "user_not_found", "User not found")
	ErrConflict     = New(http.StatusConflict, "conflict", "Resource already exists")

	ErrBadRequest      = New(http.StatusBadRequest, "bad_request", "Invalid request")
	ErrValidation      = New(http.StatusBadRequest, "validation_error", "Validation failed")
	ErrTooManyRequests = New(http.StatusTooManyRequests, "rate_limited", "Too many requests, try again later")

	ErrInternal    = New(http.StatusInternalServerError, "internal_error", "An internal error occurred")
	ErrDatabase    = New(http.StatusInternalServerError, "database_error", "Database operation failed")
	ErrUnavailable = New(http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable")
)

// As unwraps err looking for an *Error.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func NewBadRequest(message string) *Error { return ErrBadRequest.WithMessage(message) }
func NewForbidden(message string) *Error  { return ErrForbidden.WithMessage(message) }
func NewConflict(message string) *Error   { return ErrConflict.WithMessage(message) }

// NewNotFound names the missing resource, e.g. NewNotFound("payment", id).
func NewNotFound(resource, id string) *Error {
	return ErrNotFound.WithMessage(fmt.Sprintf("%s '%s' not found", resource, id))
}

// NewInternal is a 500 with a specific message and cause.
func NewInternal(message string, err error) *Error {
	return ErrInternal.WithMessage(message).WithInternal(err)
}

// Detail is the JSON error object.
type Detail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Response is the JSON body of every error response.
type Response struct {
	Error Detail `json:"error"`
}

// ToResponse maps any error to a status and body. Errors that are not
// *Error become a generic 500.
func ToResponse(err error) (int, Response) {
	if appErr, ok := As(err); ok {
		return appErr.HTTPStatus, Response{Error: Detail{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}}
	}
	return ErrInternal.HTTPStatus, Response{Error: Detail{
		Code:    ErrInternal.Code,
		Message: ErrInternal.Message,
	}}
}
