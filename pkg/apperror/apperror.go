package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the only error type services hand back to handlers. Status is the
// HTTP status the handler should answer with.
type Error struct {
	Status  int
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(message string, fields ...FieldError) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message, Fields: fields}
}

func Field(field, message string) *Error {
	return Validation("validation failed", FieldError{Field: field, Message: message})
}

func Precondition(message string, err error) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message, Err: err}
}

func Forbidden(message string) *Error {
	return &Error{Status: http.StatusForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Message: message}
}

// Upstream reports a dependency the request needed as unavailable. The caller
// may retry.
func Upstream(message string, err error) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Message: message, Err: err}
}

func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
}

// From returns err as an *Error, treating anything unrecognised as internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: message}
}

func TooManyRequests(message string) *Error {
	return &Error{Status: http.StatusTooManyRequests, Message: message}
}

// Body is the JSON envelope every failed request is answered with.
type Body struct {
	Error Payload `json:"error"`
}

type Payload struct {
	Status  int          `json:"status"`
	Message string       `json:"message,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// Body renders e for the client. Internal details never leave the process;
// field errors replace the message.
func (e *Error) Body() Body {
	if len(e.Fields) > 0 {
		return Body{Error: Payload{Status: e.Status, Errors: e.Fields}}
	}
	return Body{Error: Payload{Status: e.Status, Message: e.Message}}
}
