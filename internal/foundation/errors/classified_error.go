package errors

import (
	"fmt"
)

// ClassifiedError is a structured error carrying the failing stage
// (category), a machine-readable subkind (code), severity, retry strategy
// and arbitrary diagnostic context such as captured external-tool output.
type ClassifiedError struct {
	category ErrorCategory
	code     ErrorCode
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

// Error implements the standard error interface.
func (e *ClassifiedError) Error() string {
	label := string(e.category)
	if e.code != CodeNone {
		label += ":" + string(e.code)
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", label, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", label, e.message)
}

// Unwrap implements Go 1.13+ error unwrapping.
func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

// Category returns the error category (the failing stage).
func (e *ClassifiedError) Category() ErrorCategory {
	return e.category
}

// Code returns the machine-readable subkind.
func (e *ClassifiedError) Code() ErrorCode {
	return e.code
}

// Severity returns the error severity.
func (e *ClassifiedError) Severity() ErrorSeverity {
	return e.severity
}

// RetryStrategy returns the recommended retry strategy.
func (e *ClassifiedError) RetryStrategy() RetryStrategy {
	return e.retry
}

// Message returns the human-readable detail without cause or context.
func (e *ClassifiedError) Message() string {
	return e.message
}

// Cause returns the underlying error.
func (e *ClassifiedError) Cause() error {
	return e.cause
}

// Context returns the error context.
func (e *ClassifiedError) Context() ErrorContext {
	return e.context
}

// WithContext adds context to the error and returns a new error; the
// receiver's context map is not mutated.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	clone := *e
	ctx := make(ErrorContext, len(e.context)+1)
	ctx = ctx.Merge(e.context)
	clone.context = ctx.Set(key, value)
	return &clone
}

// Is implements error comparison for errors.Is: two classified errors match
// when their category and code match.
func (e *ClassifiedError) Is(target error) bool {
	if other, ok := target.(*ClassifiedError); ok {
		return e.category == other.category && e.code == other.code
	}
	return false
}

// IsCategory checks if the error belongs to a specific category.
func (e *ClassifiedError) IsCategory(category ErrorCategory) bool {
	return e.category == category
}

// CanRetry checks if the error allows retry operations.
func (e *ClassifiedError) CanRetry() bool {
	return e.retry == RetryBackoff
}

// IsFatal checks if the error should stop the pipeline.
func (e *ClassifiedError) IsFatal() bool {
	return e.severity == SeverityFatal
}

// AsClassified attempts to convert an error to a ClassifiedError.
func AsClassified(err error) (*ClassifiedError, bool) {
	if classified, ok := err.(*ClassifiedError); ok {
		return classified, true
	}
	return nil, false
}

// HasCategory checks whether err is a classified error of the given category.
func HasCategory(err error, category ErrorCategory) bool {
	if classified, ok := AsClassified(err); ok {
		return classified.IsCategory(category)
	}
	return false
}

// HasCode checks whether err is a classified error with the given code.
func HasCode(err error, code ErrorCode) bool {
	if classified, ok := AsClassified(err); ok {
		return classified.code == code
	}
	return false
}
