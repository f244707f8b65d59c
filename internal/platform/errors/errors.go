// Package errors provides coded application errors shared by the service,
// repository and handler layers. Every error that reaches a caller carries a
// Code so transports can map it to a status without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code classifies an application error.
type Code string

const (
	ErrCodeUnauthorized       Code = "UNAUTHORIZED"
	ErrCodeNotFound           Code = "NOT_FOUND"
	ErrCodeInvalidTransition  Code = "INVALID_TRANSITION"
	ErrCodeDuplicateSignature Code = "DUPLICATE_SIGNATURE"
	ErrCodeInvalidInput       Code = "INVALID_INPUT"
	ErrCodeConflict           Code = "CONFLICT"
	ErrCodeUnavailable        Code = "UNAVAILABLE"
	ErrCodeInternal           Code = "INTERNAL"
)

// Error is a coded error with a human-readable message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. An error that is
// already coded keeps its original code.
func Wrap(err error, code Code, message string) *Error {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		code = appErr.Code
	}
	return &Error{Code: code, Message: message, Err: err}
}

func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: message, Field: field}
}

func Unauthorized(message string) *Error {
	return &Error{Code: ErrCodeUnauthorized, Message: message}
}

func InvalidTransition(message string) *Error {
	return &Error{Code: ErrCodeInvalidTransition, Message: message}
}

func DuplicateSignature(message string) *Error {
	return &Error{Code: ErrCodeDuplicateSignature, Message: message}
}

// CodeOf returns the code of err, or ErrCodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// As is re-exported so callers importing this package as "errors" keep
// access to the standard helper.
func As(err error, target any) bool { return stderrors.As(err, target) }

// HTTPStatus maps err to an HTTP status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidTransition, ErrCodeDuplicateSignature, ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps err to a gRPC status code.
func GRPCCode(err error) codes.Code {
	switch CodeOf(err) {
	case "":
		return codes.OK
	case ErrCodeUnauthorized:
		return codes.PermissionDenied
	case ErrCodeNotFound:
		return codes.NotFound
	case ErrCodeInvalidTransition:
		return codes.FailedPrecondition
	case ErrCodeDuplicateSignature, ErrCodeConflict:
		return codes.AlreadyExists
	case ErrCodeInvalidInput:
		return codes.InvalidArgument
	case ErrCodeUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
