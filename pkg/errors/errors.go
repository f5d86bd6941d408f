package errors

import (
	"errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// ContextError annotates an error with the operation that failed. Contexts
// accumulate as the error propagates up, producing messages like
// "parse config: read file: permission denied".
type ContextError struct {
	context string
	err     error
}

// WithContext wraps err with a short description of the failed operation.
func WithContext(err error, context string) error {
	return ContextError{context: context, err: err}
}

func (err ContextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err ContextError) Unwrap() error {
	return err.err
}

// FriendlyError is an error whose message is meant to be shown to the user
// directly, without any wrapping contexts.
type FriendlyError struct {
	message string
}

// NewFriendlyError creates an error that will be printed verbatim to the
// user rather than with the usual "context: context: cause" chain.
func NewFriendlyError(format string, args ...interface{}) FriendlyError {
	return FriendlyError{message: fmt.Sprintf(format, args...)}
}

func (err FriendlyError) Error() string {
	return err.message
}

// FriendlyMessage returns the user-facing message.
func (err FriendlyError) FriendlyMessage() string {
	return err.message
}

type friendlyMessenger interface {
	FriendlyMessage() string
}

// RootCause unwraps err until it finds the innermost error.
func RootCause(err error) error {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}

// GetPrintableMessage returns the message that should be shown to the user
// for err. Errors that implement FriendlyMessage anywhere in their chain are
// printed verbatim; everything else gets the full context chain.
func GetPrintableMessage(err error) string {
	for cause := err; cause != nil; cause = errors.Unwrap(cause) {
		if friendly, ok := cause.(friendlyMessenger); ok {
			return friendly.FriendlyMessage()
		}
	}
	return err.Error()
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
