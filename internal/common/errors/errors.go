// Package errors attaches HTTP statuses to errors on their way to a handler.
package errors

import (
	"fmt"
	"net/http"
)

const (
	CodeInternalError      = http.StatusInternalServerError
	CodeBadRequest         = http.StatusBadRequest
	CodeNotFound           = http.StatusNotFound
	CodeConflict           = http.StatusConflict
	CodeServiceUnavailable = http.StatusServiceUnavailable
)

// Error carries the HTTP status it should surface as. Message is what the
// client sees.
type Error struct {
	Code    int
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code int, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code to err, keeping err's message and chain.
func Wrap(code int, err error) *Error {
	return &Error{Code: code, Message: err.Error(), cause: err}
}
