package calcfield

import (
	"errors"
	"fmt"
)

// Error codes for host misuse. Ordinary blank, cycle and arithmetic
// conditions are never errors; they are ErrorDescriptors in the Outcome.
const (
	ErrCodeUnknownField  = "UNKNOWN_FIELD"
	ErrCodeNotCalculated = "NOT_CALCULATED"
	ErrCodeMalformed     = "MALFORMED_FORMULA"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeCancelled     = "CALCULATION_CANCELLED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// CalcError is the error type returned when a calculation call fails as a
// whole.
type CalcError struct {
	Code    string  // A machine-readable error code (e.g., ErrCodeUnknownField)
	Message string  // A human-readable message
	Stage   string  // The stage where the error occurred (e.g., "parse", "evaluate")
	Field   FieldID // The field being processed, if any
	Cause   error   // The underlying error, if any
}

// Error implements the error interface.
func (e *CalcError) Error() string {
	prefix := fmt.Sprintf("[%s:%s]", e.Stage, e.Code)
	if e.Field != "" {
		prefix += fmt.Sprintf(" field %q:", e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *CalcError) Unwrap() error {
	return e.Cause
}

// NewError creates a new CalcError.
func NewError(code, stage string, field FieldID, message string, cause error) *CalcError {
	return &CalcError{
		Code:    code,
		Stage:   stage,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

func NewUnknownFieldError(stage string, field FieldID) *CalcError {
	return NewError(ErrCodeUnknownField, stage, field, "requested field has no definition", nil)
}

func NewNotCalculatedError(field FieldID, kind FieldKind) *CalcError {
	return NewError(ErrCodeNotCalculated, "plan", field, fmt.Sprintf("requested field is %s, not calculated", kind), nil)
}

func NewMalformedFormulaError(stage string, field FieldID, cause error) *CalcError {
	return NewError(ErrCodeMalformed, stage, field, "malformed formula", cause)
}

func NewConfigurationError(message string, cause error) *CalcError {
	return NewError(ErrCodeConfiguration, "initialization", "", message, cause)
}

func NewCancelledError(stage string, cause error) *CalcError {
	return NewError(ErrCodeCancelled, stage, "", "calculation cancelled", cause)
}

func NewInternalError(stage, message string, cause error) *CalcError {
	return NewError(ErrCodeInternal, stage, "", message, cause)
}

// IsCalcError reports whether err is or wraps a *CalcError.
func IsCalcError(err error) bool {
	var calcErr *CalcError
	return errors.As(err, &calcErr)
}

// ErrorCode returns the code of the first *CalcError in err's chain, or "".
func ErrorCode(err error) string {
	var calcErr *CalcError
	if errors.As(err, &calcErr) {
		return calcErr.Code
	}
	return ""
}
