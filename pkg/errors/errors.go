package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an engine failure. The socket and HTTP layers map codes
// to acknowledgements and status codes; engines never speak HTTP.
type Code string

const (
	CodeNotFound        Code = "NOT_FOUND"
	CodeForbidden       Code = "FORBIDDEN"
	CodeConflict        Code = "CONFLICT"
	CodeExpired         Code = "EXPIRED"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInternal        Code = "INTERNAL"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func NotFound(msg string) error        { return New(CodeNotFound, msg) }
func Forbidden(msg string) error       { return New(CodeForbidden, msg) }
func Conflict(msg string) error        { return New(CodeConflict, msg) }
func Expired(msg string) error         { return New(CodeExpired, msg) }
func InvalidArgument(msg string) error { return New(CodeInvalidArgument, msg) }
func Unauthorized(msg string) error    { return New(CodeUnauthorized, msg) }
func RateLimited(msg string) error     { return New(CodeRateLimited, msg) }
func Internal(msg string) error        { return New(CodeInternal, msg) }

// CodeOf returns the classification of err, or CodeInternal for plain errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

func HTTPStatusFromError(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict, CodeExpired:
		return http.StatusConflict
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
