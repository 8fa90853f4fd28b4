package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies executor failures so the dispatcher can decide
// between redelivery and a terminal per-command outcome.
type ErrorKind string

const (
	// ErrorKindTransient marks failures that may succeed on retry: timeouts,
	// connection resets, engine overload. The delivery is released for
	// redelivery.
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindLogical marks failures that will not succeed on retry: the
	// engine rejected the command for this target. The command outcome is
	// failed and the attempt continues.
	ErrorKindLogical ErrorKind = "logical"
)

// ExecutionError is the typed failure an Executor returns. Kind drives the
// dispatcher's retry policy; anything an executor cannot classify should be
// reported as transient, since retrying a logical failure wastes a receive
// but dropping a transient one loses work.
type ExecutionError struct {
	Kind    ErrorKind
	Command string
	Message string
	cause   error
}

func (e *ExecutionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("execute %s: %s", e.Command, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("execute %s: %v", e.Command, e.cause)
	}
	return fmt.Sprintf("execute %s: %s failure", e.Command, e.Kind)
}

func (e *ExecutionError) Unwrap() error { return e.cause }

// NewTransientError builds an ExecutionError the dispatcher will retry.
func NewTransientError(command, message string, cause error) *ExecutionError {
	return &ExecutionError{Kind: ErrorKindTransient, Command: command, Message: message, cause: cause}
}

// NewLogicalError builds an ExecutionError the dispatcher treats as terminal
// for the command.
func NewLogicalError(command, message string, cause error) *ExecutionError {
	return &ExecutionError{Kind: ErrorKindLogical, Command: command, Message: message, cause: cause}
}

// IsTransient reports whether err is an ExecutionError of transient kind.
// Unclassified errors are treated as transient.
func IsTransient(err error) bool {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind == ErrorKindTransient
	}
	return true
}

// IsLogical reports whether err is an ExecutionError of logical kind.
func IsLogical(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr) && execErr.Kind == ErrorKindLogical
}
