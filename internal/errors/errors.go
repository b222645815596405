// Package errors provides a lightweight structured error type (DocmakeError)
// for category-based classification across the CLI and the tool runners.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a docmake error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// External tool integration errors
	CategoryVenv      ErrorCategory = "venv"
	CategoryToolchain ErrorCategory = "toolchain"
	CategorySphinx    ErrorCategory = "sphinx"

	// Build and verification errors
	CategoryBuild      ErrorCategory = "build"
	CategoryLinkCheck  ErrorCategory = "linkcheck"
	CategoryFileSystem ErrorCategory = "filesystem"

	// Runtime and infrastructure errors
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryPreview  ErrorCategory = "preview"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// DocmakeError is a structured error with category, retryability, and context
type DocmakeError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for DocmakeError
type ContextFields map[string]any

// Error implements the error interface
func (e *DocmakeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *DocmakeError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *DocmakeError) WithContext(key string, value any) *DocmakeError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the severity of the error.
func (e *DocmakeError) WithSeverity(severity ErrorSeverity) *DocmakeError {
	e.Severity = severity
	return e
}

// New creates a new DocmakeError
func New(category ErrorCategory, severity ErrorSeverity, message string) *DocmakeError {
	return &DocmakeError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new DocmakeError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *DocmakeError {
	return &DocmakeError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// WrapRetryable creates a new retryable DocmakeError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *DocmakeError {
	return &DocmakeError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if dme, ok := err.(*DocmakeError); ok {
		return dme.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if dme, ok := err.(*DocmakeError); ok {
		return dme.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a DocmakeError
func GetCategory(err error) ErrorCategory {
	if dme, ok := err.(*DocmakeError); ok {
		return dme.Category
	}
	return CategoryInternal
}

// WrapError wraps an existing error with a new DocmakeError at SeverityError
func WrapError(err error, category ErrorCategory, message string) *DocmakeError {
	return &DocmakeError{
		Category:  category,
		Severity:  SeverityError,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}
