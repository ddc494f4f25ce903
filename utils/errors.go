package utils

import (
	"fmt"
	"net/http"
)

// AppError is an expected, user-facing failure. Anything that is not an
// AppError (after normalization) is treated as a bug and hidden from clients.
type AppError struct {
	StatusCode int
	Status     string
	Message    string
}

func NewAppError(message string, statusCode int) *AppError {
	status := "error"
	if statusCode >= 400 && statusCode < 500 {
		status = "fail"
	}
	return &AppError{
		StatusCode: statusCode,
		Status:     status,
		Message:    message,
	}
}

func (e *AppError) Error() string {
	return e.Message
}

func BadRequest(message string) *AppError {
	return NewAppError(message, http.StatusBadRequest)
}

func Unauthorized(message string) *AppError {
	return NewAppError(message, http.StatusUnauthorized)
}

func Forbidden(message string) *AppError {
	return NewAppError(message, http.StatusForbidden)
}

func NotFound(message string) *AppError {
	return NewAppError(message, http.StatusNotFound)
}

// CastError reports a value that cannot be converted to the type of the
// field it targets, e.g. a malformed id in the URL.
type CastError struct {
	Path  string
	Value string
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cast to %s failed for value %q", e.Path, e.Value)
}
