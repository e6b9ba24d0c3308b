package errors

import (
	"fmt"
	"net/http"
)

// ErrorType represents the categories of failure a request can end in
type ErrorType string

const (
	ErrorTypeBadRequest         ErrorType = "bad_request"
	ErrorTypeInvalidFile        ErrorType = "invalid_file"
	ErrorTypeInvalidImage       ErrorType = "invalid_image"
	ErrorTypeServiceUnavailable ErrorType = "service_unavailable"
	ErrorTypePayloadTooLarge    ErrorType = "payload_too_large"
	ErrorTypeInternal           ErrorType = "internal"
)

// AppError is the single error shape that crosses the request boundary.
// Code and Message are client facing; Cause is only ever logged.
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"error"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ClientError reports whether the failure was caused by the caller's input.
func (e *AppError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// NewBadRequestError is returned when the request lacks the expected form field.
func NewBadRequestError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeBadRequest,
		Code:       "Bad request",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewInvalidFileError is returned when the upload fails validation.
func NewInvalidFileError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidFile,
		Code:       "Invalid file",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewInvalidImageError is returned when the upload cannot be decoded as an image.
func NewInvalidImageError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidImage,
		Code:       "Invalid image",
		Message:    "Could not process image file. Please ensure it's a valid image.",
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewServiceUnavailableError is returned while the model is not loaded or all workers are busy.
func NewServiceUnavailableError(code, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeServiceUnavailable,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewNotReadyError is the ServiceUnavailable variant for an unloaded model.
func NewNotReadyError(cause error) *AppError {
	return NewServiceUnavailableError("Service not ready", "Background removal model is not loaded", cause)
}

// NewPayloadTooLargeError is returned when the upload exceeds the size limit.
func NewPayloadTooLargeError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypePayloadTooLarge,
		Code:       "File too large",
		Message:    message,
		StatusCode: http.StatusRequestEntityTooLarge,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "Internal server error",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}
