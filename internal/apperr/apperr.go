// Package apperr defines the error taxonomy shared by the services and the
// HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

type Code string

const (
	Unauthorized    Code = "UNAUTHORIZED"
	Forbidden       Code = "FORBIDDEN"
	InvalidArgument Code = "INVALID_ARGUMENT"
	NotFound        Code = "NOT_FOUND"
	UploadFailed    Code = "UPLOAD_FAILED"
	StoreError      Code = "STORE_ERROR"
	RateLimited     Code = "RATE_LIMITED"
)

type Error struct {
	Code    Code
	Message string
	Origin  error // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Origin != nil {
		return e.Message + ": " + e.Origin.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Origin
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, origin error) *Error {
	return &Error{Code: code, Message: message, Origin: origin}
}

func NewUnauthorized() *Error {
	return New(Unauthorized, "unauthorized")
}

func NewForbidden(message string) *Error {
	return New(Forbidden, message)
}

func NewInvalid(message string) *Error {
	return New(InvalidArgument, message)
}

func NewNotFound(message string) *Error {
	return New(NotFound, message)
}

// Store wraps a persistence failure. A nil origin yields nil so call sites can
// write `return apperr.Store("...", err)` after any store call.
func Store(message string, origin error) error {
	if origin == nil {
		return nil
	}
	return Wrap(StoreError, message, origin)
}

// CodeOf returns the code carried by err. Untyped errors count as store
// failures.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return StoreError
}

func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// PublicMessage is the message safe to show to a caller; the origin (driver
// details) is never included.
func PublicMessage(err error) string {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return "internal server error"
	}
	return appErr.Message
}

func HTTPStatus(code Code) int {
	switch code {
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case UploadFailed:
		return http.StatusBadGateway
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
