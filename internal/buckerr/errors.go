// Package buckerr provides a lightweight structured error type (BuildError)
// for category-based classification of build failures surfaced by the CLI.
package buckerr

import (
	"errors"
	"fmt"
)

// Category represents the classification of a build error.
type Category string

const (
	// CategoryConfig covers invalid or contradictory declared fields,
	// detected at rule-construction time. Never retried.
	CategoryConfig Category = "config"

	// CategoryIntegrity covers declared input files that are missing or
	// unreadable at fingerprinting time.
	CategoryIntegrity Category = "integrity"

	// CategoryTool covers external tool processes exiting non-zero.
	CategoryTool Category = "tool"

	// CategoryGraph covers dependency cycles and references to
	// unregistered or invisible targets.
	CategoryGraph Category = "graph"

	// CategoryInternal is the fallback for errors that escaped
	// classification.
	CategoryInternal Category = "internal"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // Stops the build.
	SeverityError   Severity = "error"   // Error, but not fatal.
	SeverityWarning Severity = "warning" // Continues with degraded behavior.
)

// BuildError is a structured error with category, severity, and context.
type BuildError struct {
	Category Category      `json:"category"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for BuildError.
type ContextFields map[string]any

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping.
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *BuildError) WithContext(key string, value any) *BuildError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new BuildError.
func New(category Category, severity Severity, message string) *BuildError {
	return &BuildError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new BuildError that wraps an existing error.
func Wrap(err error, category Category, severity Severity, message string) *BuildError {
	return &BuildError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// Configf creates a fatal configuration error.
func Configf(format string, args ...any) *BuildError {
	return New(CategoryConfig, SeverityFatal, fmt.Sprintf(format, args...))
}

// Integrityf creates a fatal integrity error wrapping cause.
func Integrityf(cause error, format string, args ...any) *BuildError {
	return Wrap(cause, CategoryIntegrity, SeverityFatal, fmt.Sprintf(format, args...))
}

// Graphf creates a fatal graph error.
func Graphf(format string, args ...any) *BuildError {
	return New(CategoryGraph, SeverityFatal, fmt.Sprintf(format, args...))
}

// Toolf creates a fatal external-tool error wrapping cause.
func Toolf(cause error, format string, args ...any) *BuildError {
	return Wrap(cause, CategoryTool, SeverityFatal, fmt.Sprintf(format, args...))
}

// IsCategory checks whether err (or anything it wraps) belongs to category.
func IsCategory(err error, category Category) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or CategoryInternal if
// the error carries no classification.
func GetCategory(err error) Category {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Category
	}
	return CategoryInternal
}
