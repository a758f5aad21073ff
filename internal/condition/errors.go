package condition

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("relmap: invalid condition")
	// ErrUnknownOperator is wrapped by a ValidationError for an unrecognized
	// operator token.
	ErrUnknownOperator = errors.New("unknown operator")
)

// ValidationError reports a condition whose shape cannot be compiled, such as
// a list value used with an ordering operator or BETWEEN without exactly two
// bounds.
type ValidationError struct {
	Column   string
	Operator string
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("relmap: invalid condition on %q", e.Column)
	if e.Operator != "" {
		msg += fmt.Sprintf(" (operator %q)", e.Operator)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(column, operator, reason string) error {
	return &ValidationError{Column: column, Operator: operator, Reason: reason}
}
