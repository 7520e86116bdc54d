// Package errors provides structured error types for kvmix.
// Every error carries a category and a code so callers can tell a bad
// configuration apart from a store that returned the wrong outcome.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the stage of a run that produced them.
type ErrorCategory string

const (
	ErrCategoryConfiguration ErrorCategory = "CONFIGURATION"
	ErrCategoryInvariant     ErrorCategory = "INVARIANT"
	ErrCategoryAdapter       ErrorCategory = "ADAPTER"
	ErrCategoryReport        ErrorCategory = "REPORT"
	ErrCategoryInternal      ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Configuration codes
	CodePercentOutOfRange = "PERCENT_OUT_OF_RANGE"
	CodeMixSum            = "MIX_SUM"
	CodeInvalidThreads    = "INVALID_THREADS"
	CodeInvalidCapacity   = "INVALID_CAPACITY"
	CodeInvalidField      = "INVALID_FIELD"
	CodeConfigLoad        = "CONFIG_LOAD"

	// Invariant codes
	CodeOutcomeMismatch     = "OUTCOME_MISMATCH"
	CodePrefillInsertFailed = "PREFILL_INSERT_FAILED"

	// Adapter codes
	CodeOperationFailed = "OPERATION_FAILED"
	CodeOpenFailed      = "OPEN_FAILED"

	// Report codes
	CodePublishFailed  = "PUBLISH_FAILED"
	CodeReportNotFound = "REPORT_NOT_FOUND"
	CodeFetchFailed    = "FETCH_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// KVMixError is the structured error type used throughout kvmix.
type KVMixError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *KVMixError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *KVMixError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *KVMixError) Is(target error) bool {
	var t *KVMixError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new KVMixError.
func New(category ErrorCategory, code, message string) *KVMixError {
	return &KVMixError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new KVMixError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *KVMixError {
	return &KVMixError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *KVMixError) WithDetails(details map[string]interface{}) *KVMixError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a KVMixError.
func GetCategory(err error) ErrorCategory {
	var ke *KVMixError
	if errors.As(err, &ke) {
		return ke.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a KVMixError.
func GetCode(err error) string {
	var ke *KVMixError
	if errors.As(err, &ke) {
		return ke.Code
	}
	return ""
}

// IsConfigurationError reports whether err was caused by an invalid run configuration.
func IsConfigurationError(err error) bool {
	return GetCategory(err) == ErrCategoryConfiguration
}

// IsInvariantViolation reports whether err was caused by a store outcome that
// differed from the predicted one.
func IsInvariantViolation(err error) bool {
	return GetCategory(err) == ErrCategoryInvariant
}

// Convenience constructors for common errors.

func NewConfigurationError(code, message string) *KVMixError {
	return New(ErrCategoryConfiguration, code, message)
}

func NewInvariantViolation(code, message string) *KVMixError {
	return New(ErrCategoryInvariant, code, message)
}

func NewAdapterError(code, message string, cause error) *KVMixError {
	return Wrap(ErrCategoryAdapter, code, message, cause)
}

func NewReportError(code, message string, cause error) *KVMixError {
	return Wrap(ErrCategoryReport, code, message, cause)
}

func NewInternalError(message string, cause error) *KVMixError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
