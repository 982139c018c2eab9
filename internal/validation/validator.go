// Package validation provides input validation utilities for pipeline operations.
// Validators are small values with a Validate method so callers can compose
// the checks an operation needs before it touches any row.
package validation

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paveg/pivotgrid/internal/errors"
	"github.com/paveg/pivotgrid/internal/series"
)

// Validator interface for input validation
type Validator interface {
	Validate() error
}

// ColumnProvider interface for types that provide column information
type ColumnProvider interface {
	HasColumn(name string) bool
	Columns() []string
	Len() int
	Width() int
}

// TypeProvider is a ColumnProvider that also reports column types.
type TypeProvider interface {
	ColumnProvider
	DataTypeOf(name string) (arrow.DataType, bool)
}

// ColumnValidator validates column existence
type ColumnValidator struct {
	df      ColumnProvider
	columns []string
	op      string
}

// NewColumnValidator creates a validator for column operations
func NewColumnValidator(df ColumnProvider, op string, columns ...string) *ColumnValidator {
	return &ColumnValidator{
		df:      df,
		columns: columns,
		op:      op,
	}
}

// Validate checks if all columns exist in the DataFrame
func (v *ColumnValidator) Validate() error {
	for _, column := range v.columns {
		if !v.df.HasColumn(column) {
			return errors.NewColumnNotFoundError(v.op, column)
		}
	}
	return nil
}

// NumericValidator checks that a column holds numbers
type NumericValidator struct {
	df     TypeProvider
	column string
	op     string
	reason string
}

// NewNumericValidator creates a validator that rejects non-numeric columns.
// reason is appended to the error message to explain why a number is needed.
func NewNumericValidator(df TypeProvider, op, column, reason string) *NumericValidator {
	return &NumericValidator{
		df:     df,
		column: column,
		op:     op,
		reason: reason,
	}
}

// Validate checks the column type
func (v *NumericValidator) Validate() error {
	dt, ok := v.df.DataTypeOf(v.column)
	if !ok {
		return errors.NewColumnNotFoundError(v.op, v.column)
	}
	if !series.IsNumeric(dt) {
		message := fmt.Sprintf("column type %s is not numeric", dt)
		if v.reason != "" {
			message += "; " + v.reason
		}
		return errors.NewTypeMismatchError(v.op, v.column, message)
	}
	return nil
}

// DisjointValidator checks that two named column lists share no column
type DisjointValidator struct {
	left, right         []string
	leftName, rightName string
	op                  string
}

// NewDisjointValidator creates a validator for two column lists that must not overlap
func NewDisjointValidator(op, leftName string, left []string, rightName string, right []string) *DisjointValidator {
	return &DisjointValidator{
		left:      left,
		right:     right,
		leftName:  leftName,
		rightName: rightName,
		op:        op,
	}
}

// Validate reports every shared column
func (v *DisjointValidator) Validate() error {
	inLeft := make(map[string]struct{}, len(v.left))
	for _, name := range v.left {
		inLeft[name] = struct{}{}
	}
	var shared []string
	for _, name := range v.right {
		if _, ok := inLeft[name]; ok {
			shared = append(shared, name)
		}
	}
	if len(shared) > 0 {
		return errors.NewInvalidInputError(v.op, fmt.Sprintf("%s and %s share columns: %s",
			v.leftName, v.rightName, strings.Join(shared, ", ")))
	}
	return nil
}

// UniqueValidator checks a column list has no repeated names
type UniqueValidator struct {
	columns []string
	what    string
	op      string
}

// NewUniqueValidator creates a validator for repeated names in one list
func NewUniqueValidator(op, what string, columns []string) *UniqueValidator {
	return &UniqueValidator{columns: columns, what: what, op: op}
}

// Validate reports the first repeated name
func (v *UniqueValidator) Validate() error {
	seen := make(map[string]struct{}, len(v.columns))
	for _, name := range v.columns {
		if _, dup := seen[name]; dup {
			return errors.NewValidationError(v.op, name, fmt.Sprintf("column listed twice in %s", v.what))
		}
		seen[name] = struct{}{}
	}
	return nil
}

// CompoundValidator combines multiple validators
type CompoundValidator struct {
	validators []Validator
}

// NewCompoundValidator creates a validator that checks multiple conditions
func NewCompoundValidator(validators ...Validator) *CompoundValidator {
	return &CompoundValidator{
		validators: validators,
	}
}

// Validate runs all validators and returns the first error encountered
func (v *CompoundValidator) Validate() error {
	for _, validator := range v.validators {
		if err := validator.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Convenience validation functions

// ValidateColumns is a convenience function for column validation
func ValidateColumns(df ColumnProvider, op string, columns ...string) error {
	return NewColumnValidator(df, op, columns...).Validate()
}

// ValidateNumeric is a convenience function for numeric column validation
func ValidateNumeric(df TypeProvider, op, column, reason string) error {
	return NewNumericValidator(df, op, column, reason).Validate()
}
