// Package domainerrors carries coded errors across service boundaries.
//
// Services translate store sentinels into coded errors; transports map codes
// onto their own status vocabulary. The code survives wrapping, and the
// original cause stays reachable through errors.Is / errors.As.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure for callers.
type Code string

const (
	// CodeValidationRejected: the edge is not in the adjacency table.
	CodeValidationRejected Code = "VALIDATION_REJECTED"
	// CodeTerminalState: an attempt to leave an absorbing state.
	CodeTerminalState Code = "TERMINAL_STATE_VIOLATION"
	// CodeGovernanceRequired: the edge needs maker-checker approval.
	CodeGovernanceRequired Code = "GOVERNANCE_REQUIRED"
	CodeNotFound           Code = "NOT_FOUND"
	// CodeConflict: a compare-and-swap precondition failed. Retryable by rereading.
	CodeConflict Code = "CONFLICT"
	// CodeStoreError: the persistence collaborator failed. The cause is preserved.
	CodeStoreError Code = "STORE_ERROR"
	// CodeTimeout: a store call exceeded its deadline.
	CodeTimeout    Code = "TIMEOUT"
	CodeBadRequest Code = "BAD_REQUEST"
	CodeInternal   Code = "INTERNAL"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error with no underlying cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or CodeInternal when the
// chain carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain message, falling back to err.Error().
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
