package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// StoreReadMessage describes history store read failures.
	StoreReadMessage = "failed to read chat history"
	// StoreWriteMessage describes history store write failures.
	StoreWriteMessage = "failed to save chat history"
	// ClassifierMessage describes emotion classifier outages.
	ClassifierMessage = "emotion classifier unavailable"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Resolve returns the status code and safe message for err. Errors that are not
// AppErrors map to 500 with SystemErrorMessage so raw upstream text never leaks.
func Resolve(err error) (int, string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		msg := appErr.Message
		if msg == "" {
			msg = SystemErrorMessage
		}
		return status, msg
	}
	return http.StatusInternalServerError, SystemErrorMessage
}
