// Package errors provides the structured error type (ReportError) used to
// classify failures of the fragment pipeline, plus the aggregated errors raised
// once per document and once per batch.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a report error for classification.
type ErrorCategory string

const (
	// Static structure errors: ambiguous or missing templates, sources, fetchers.
	CategoryConfig ErrorCategory = "config"

	// Fragment-scoped stage errors.
	CategoryMetadata ErrorCategory = "metadata"
	CategoryData     ErrorCategory = "data"
	CategoryContext  ErrorCategory = "context"

	// Document-level errors after the fragments completed.
	CategoryRender     ErrorCategory = "render"
	CategoryFileSystem ErrorCategory = "filesystem"

	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// ReportError is a structured error with category, fragment identity and a truncated trace.
type ReportError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Fragment string        `json:"fragment,omitempty"`
	Trace    []string      `json:"trace,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for ReportError
type ContextFields map[string]any

// Error implements the error interface
func (e *ReportError) Error() string {
	prefix := ""
	if e.Fragment != "" {
		prefix = e.Fragment + ": "
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s%s (%s): %s: %v", prefix, e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s%s (%s): %s", prefix, e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *ReportError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *ReportError) WithContext(key string, value any) *ReportError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// WithFragment tags the error with the fragment it originated from.
func (e *ReportError) WithFragment(name string) *ReportError {
	e.Fragment = name
	return e
}

// New creates a new ReportError
func New(category ErrorCategory, severity ErrorSeverity, message string) *ReportError {
	return &ReportError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new ReportError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *ReportError {
	return &ReportError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if any error in the chain belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	var re *ReportError
	if stdErrors.As(err, &re) {
		return re.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a ReportError
func GetCategory(err error) ErrorCategory {
	var re *ReportError
	if stdErrors.As(err, &re) {
		return re.Category
	}
	return CategoryInternal
}

// TraceOf returns the trace recorded on the first ReportError in the chain.
func TraceOf(err error) []string {
	var re *ReportError
	if stdErrors.As(err, &re) {
		return re.Trace
	}
	return nil
}
