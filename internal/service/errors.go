package service

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrTemplateInactive  = errors.New("template is inactive")
	ErrTaskNotFound      = errors.New("assigned task not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrForbidden         = errors.New("forbidden")
	ErrRenewalInProgress = errors.New("renewal already running")
)

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports malformed input; callers surface it as a client error.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return "validation failed"
	}
	if len(e.Fields) == 0 {
		return e.Err.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return e.Err.Error() + " (" + strings.Join(parts, "; ") + ")"
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StoreError wraps a persistence failure. Not retried.
type StoreError struct {
	Op  string
	Err error
}

func newStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: errors.WithStack(err)}
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// RenewalBatchError aborts a renewal pass. Attempted is the number of rows the
// pass was working on when it failed.
type RenewalBatchError struct {
	Attempted int
	Err       error
}

func (e *RenewalBatchError) Error() string {
	return fmt.Sprintf("renewal aborted after %d rows: %v", e.Attempted, e.Err)
}

func (e *RenewalBatchError) Unwrap() error {
	return e.Err
}

// IsClientError reports whether err was caused by the caller's input or rights.
func IsClientError(err error) bool {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return true
	case errors.Is(err, ErrTemplateNotFound),
		errors.Is(err, ErrTemplateInactive),
		errors.Is(err, ErrTaskNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrForbidden):
		return true
	}
	return false
}
