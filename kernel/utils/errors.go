package utils

import (
	"github.com/pkg/errors"
)

// NewError creates a new error with a message and a captured stack.
func NewError(msg string) error {
	return errors.New(msg)
}

// WrapError wraps an error with additional context. The result still
// satisfies errors.Is/As against err.
func WrapError(err error, msg string) error {
	if err == nil {
		return errors.New(msg)
	}
	return errors.Wrap(err, msg)
}

// WrapErrorf is WrapError with a format string.
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return errors.Errorf(format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

// TimeoutError creates a timeout error
func TimeoutError(operation string) error {
	return errors.Errorf("%s: operation timed out", operation)
}

// RootCause returns the innermost error of a wrap chain.
func RootCause(err error) error {
	return errors.Cause(err)
}
