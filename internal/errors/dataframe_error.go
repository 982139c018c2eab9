// Package errors provides standardized error types for the viewer pipeline.
// DataFrameError carries the failing operation, the column involved, and a
// Kind that classifies the failure for callers and the HTTP surface.
package errors

import (
	"fmt"
)

// Kind classifies a DataFrameError.
type Kind int

const (
	// KindInternal is an unexpected failure inside an operation.
	KindInternal Kind = iota
	// KindInvalidInput is a malformed request such as overlapping pivot keys.
	KindInvalidInput
	// KindColumnNotFound is a reference to a column the dataset does not have.
	KindColumnNotFound
	// KindInvalidRange is a numeric range filter with min > max.
	KindInvalidRange
	// KindTypeMismatch is a column whose type cannot serve the requested operation.
	KindTypeMismatch
	// KindSourceUnavailable is a data source that cannot be reached or opened.
	KindSourceUnavailable
	// KindQuery is a malformed or schema-mismatched query.
	KindQuery
)

var kindNames = map[Kind]string{
	KindInternal:          "internal",
	KindInvalidInput:      "invalid_input",
	KindColumnNotFound:    "column_not_found",
	KindInvalidRange:      "invalid_range",
	KindTypeMismatch:      "type_mismatch",
	KindSourceUnavailable: "source_unavailable",
	KindQuery:             "query_error",
}

// String returns the snake_case name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown_kind(%d)", int(k))
}

// DataFrameError represents standardized errors across all pipeline operations
type DataFrameError struct {
	Kind    Kind   // Failure classification
	Op      string // Operation name (e.g., "Filter", "Pivot", "Fetch")
	Column  string // Column name if applicable
	Message string // Human-readable error description
	Cause   error  // Underlying error cause

	sentinel bool
}

// Error implements the error interface
func (e *DataFrameError) Error() string {
	if e.sentinel {
		return e.Message
	}
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Column != "" {
		return fmt.Sprintf("%s operation failed on column '%s': %s", e.Op, e.Column, msg)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Op, msg)
}

// Unwrap returns the underlying cause for error wrapping support
func (e *DataFrameError) Unwrap() error {
	return e.Cause
}

// Is implements error equality checking for errors.Is().
// Kind sentinels such as ErrInvalidRange match every error of that kind.
func (e *DataFrameError) Is(target error) bool {
	df, ok := target.(*DataFrameError)
	if !ok {
		return false
	}
	if df.sentinel {
		return e.Kind == df.Kind
	}
	return e.Kind == df.Kind && e.Op == df.Op && e.Column == df.Column && e.Message == df.Message
}

// KindOf returns the kind of the first DataFrameError in err's chain.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if df, ok := err.(*DataFrameError); ok {
			return df.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return KindInternal, false
		}
		err = u.Unwrap()
	}
	return KindInternal, false
}

func sentinelOf(kind Kind, message string) *DataFrameError {
	return &DataFrameError{Kind: kind, Message: message, sentinel: true}
}

// Kind sentinels for errors.Is checks
var (
	ErrColumnNotFound    = sentinelOf(KindColumnNotFound, "column not found")
	ErrInvalidInput      = sentinelOf(KindInvalidInput, "invalid input")
	ErrInvalidRange      = sentinelOf(KindInvalidRange, "invalid range")
	ErrTypeMismatch      = sentinelOf(KindTypeMismatch, "type mismatch")
	ErrSourceUnavailable = sentinelOf(KindSourceUnavailable, "source unavailable")
	ErrQuery             = sentinelOf(KindQuery, "query error")
)

// Common error constructors for consistent error creation

// NewColumnNotFoundError creates an error for operations on non-existent columns
func NewColumnNotFoundError(op, column string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindColumnNotFound,
		Op:      op,
		Column:  column,
		Message: "column does not exist",
	}
}

// NewInvalidInputError creates an error for invalid operation inputs
func NewInvalidInputError(op, message string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindInvalidInput,
		Op:      op,
		Message: message,
	}
}

// NewValidationError creates an error for input validation failures
func NewValidationError(op, column, message string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindInvalidInput,
		Op:      op,
		Column:  column,
		Message: message,
	}
}

// NewInvalidRangeError creates an error for a range whose lower bound exceeds its upper bound
func NewInvalidRangeError(op, column string, minimum, maximum float64) *DataFrameError {
	return &DataFrameError{
		Kind:    KindInvalidRange,
		Op:      op,
		Column:  column,
		Message: fmt.Sprintf("range min %g is greater than max %g", minimum, maximum),
	}
}

// NewTypeMismatchError creates an error for a column whose type does not fit the operation
func NewTypeMismatchError(op, column, message string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindTypeMismatch,
		Op:      op,
		Column:  column,
		Message: message,
	}
}

// NewSourceUnavailableError creates an error for an unreachable data source
func NewSourceUnavailableError(op string, cause error) *DataFrameError {
	return &DataFrameError{
		Kind:    KindSourceUnavailable,
		Op:      op,
		Message: "data source unavailable",
		Cause:   cause,
	}
}

// NewQueryError creates an error for a malformed or mismatched query
func NewQueryError(op, message string, cause error) *DataFrameError {
	return &DataFrameError{
		Kind:    KindQuery,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// NewUnsupportedTypeError creates an error for unsupported data types
func NewUnsupportedTypeError(op, typeName string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindTypeMismatch,
		Op:      op,
		Message: fmt.Sprintf("unsupported type: %s", typeName),
	}
}

// NewInternalError creates an error for internal operation failures
func NewInternalError(op string, cause error) *DataFrameError {
	return &DataFrameError{
		Kind:    KindInternal,
		Op:      op,
		Message: "internal error occurred",
		Cause:   cause,
	}
}

// Predefined error variables for common cases
var (
	// ErrMismatchedLength indicates columns of different lengths
	ErrMismatchedLength = &DataFrameError{
		Kind:    KindInvalidInput,
		Op:      "validation",
		Message: "columns must have the same length",
	}

	// ErrDuplicateColumn indicates two columns sharing a name
	ErrDuplicateColumn = &DataFrameError{
		Kind:    KindInvalidInput,
		Op:      "validation",
		Message: "column names must be unique",
	}
)
