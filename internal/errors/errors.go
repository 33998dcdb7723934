package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies an error. Codes are compared with Is, never by message.
type Code string

func (c Code) Error() string { return string(c) }

// Error pairs a Code with the underlying cause. The cause carries a
// pkg/errors stack trace, printed with %+v.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a target Code. Codes of wrapped causes are reached through Unwrap.
func (e *Error) Is(target error) bool {
	code, ok := target.(Code)
	return ok && e.Code == code
}

func New(code Code, message string) error {
	return &Error{Code: code, Err: errors.New(message)}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Err: errors.Errorf(format, args...)}
}

// Wrap returns nil for a nil err.
func Wrap(code Code, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: errors.Wrap(err, message)}
}

// Wrapf returns nil for a nil err.
func Wrapf(code Code, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: errors.Wrapf(err, format, args...)}
}

// PureNew is a plain error with neither code nor stack.
func PureNew(message string) error {
	return stderrors.New(message)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first T in err's chain.
func As[T error](err error) (*T, bool) {
	var target T
	if stderrors.As(err, &target) {
		return &target, true
	}
	return nil, false
}
