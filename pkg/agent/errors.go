package model

import (
	"errors"
	"fmt"
)

// ErrInvalidIntent is returned when an intent fails schema validation.
var ErrInvalidIntent = errors.New("invalid intent")

// ErrorCode classifies a failed BrowserAction.
type ErrorCode string

const (
	CodeMissingParameter  ErrorCode = "MissingParameter"
	CodeUnknownAction     ErrorCode = "UnknownAction"
	CodeExtractionFailed  ErrorCode = "ExtractionFailed"
	CodeObservationFailed ErrorCode = "ObservationFailed"
	CodeScreenshotFailed  ErrorCode = "ScreenshotFailed"
	CodeAutomationFailed  ErrorCode = "AutomationFailed"
)

// ActionError is an execution failure tagged with its taxonomy code.
type ActionError struct {
	Code    ErrorCode
	Message string
}

func NewActionError(code ErrorCode, msg string) *ActionError {
	return &ActionError{Code: code, Message: msg}
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsContractError reports whether the error was raised before any automation was attempted.
func (e *ActionError) IsContractError() bool {
	return e.Code == CodeMissingParameter || e.Code == CodeUnknownAction
}

// CodeOf extracts the taxonomy code from err, defaulting to AutomationFailed.
func CodeOf(err error) ErrorCode {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeAutomationFailed
}
