package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Request workflow errors.
var (
	ErrInvalidStatus          = New("INVALID_STATUS", http.StatusConflict, "request is not in a state that allows this transition")
	ErrAccessDenied           = New("ACCESS_DENIED", http.StatusForbidden, "actor is not allowed to act on this request")
	ErrSessionClassMismatch   = New("SESSION_CLASS_MISMATCH", http.StatusBadRequest, "session does not belong to the declared class")
	ErrPastSession            = New("PAST_SESSION", http.StatusBadRequest, "session has already occurred")
	ErrInvalidSessionStatus   = New("INVALID_SESSION_STATUS", http.StatusBadRequest, "session is not planned")
	ErrNotEnrolled            = New("NOT_ENROLLED", http.StatusBadRequest, "student has no active enrollment in this class")
	ErrSessionNotAssigned     = New("SESSION_NOT_ASSIGNED", http.StatusBadRequest, "student is not assigned to this session")
	ErrDuplicateRequest       = New("DUPLICATE_REQUEST", http.StatusConflict, "an active request of this type already exists for the session")
	ErrCapacityExceeded       = New("CAPACITY_EXCEEDED", http.StatusConflict, "target capacity exceeded")
	ErrOverrideReasonRequired = New("OVERRIDE_REASON_REQUIRED", http.StatusBadRequest, "capacity override requires a reason")
	ErrSchedulingConflict     = New("SCHEDULING_CONFLICT", http.StatusConflict, "resource is already occupied for this date and time slot")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
