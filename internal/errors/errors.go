package errors

import "errors"

// Code identifies a structured error type used across the application.
type Code string

const (
	// Generic codes
	CodeUnknown  Code = "unknown"
	CodeNotFound Code = "not_found"

	// Update feed and backend errors
	CodeFeedError           Code = "feed_error"
	CodeNothingToInstall    Code = "nothing_to_install"
	CodeUnsupportedPlatform Code = "unsupported_platform"

	// Manual install path
	CodeInstallError    Code = "install_error"
	CodeExtractionError Code = "extraction_error"

	// Plumbing
	CodeTransportError     Code = "transport_error"
	CodeConfigurationError Code = "configuration_error"
)

// Error represents a structured error with a machine-readable code plus message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Detail returns the message followed by the wrapped cause, if any.
func (e Error) Detail() string {
	if e.Err == nil {
		return e.Error()
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

// New wraps an error with a code/message.
func New(code Code, msg string, err error) Error {
	return Error{Code: code, Message: msg, Err: err}
}

// CodeOf walks the error chain and returns the first structured code found.
func CodeOf(err error) Code {
	var structured Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	return CodeUnknown
}

// IsCode reports whether the error (or its unwrap chain) matches the provided code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// DetailOf returns the most descriptive text available for err.
func DetailOf(err error) string {
	if err == nil {
		return ""
	}
	var structured Error
	if errors.As(err, &structured) {
		return structured.Detail()
	}
	return err.Error()
}
