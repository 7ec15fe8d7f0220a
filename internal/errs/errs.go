package errs

import (
	"errors"
)

// Code is an application error code.
type Code string

const (
	InvalidArgument Code = "invalid_argument"
	Unauthenticated Code = "unauthenticated"
	Unverified      Code = "unverified"
	Exhausted       Code = "exhausted"
	Unavailable     Code = "unavailable"
	Internal        Code = "internal"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorCode lets *Error satisfy the same classification contract as typed errors.
func (e *Error) ErrorCode() Code {
	if e == nil || e.Code == "" {
		return Internal
	}
	return e.Code
}

// Coder is implemented by typed errors that classify themselves.
type Coder interface {
	ErrorCode() Code
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the outermost error code in the chain, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded Coder
	if errors.As(err, &coded) {
		code := coded.ErrorCode()
		if code == "" {
			return Internal
		}
		return code
	}
	return Internal
}

// ExitCode maps an error code to a process exit status.
func ExitCode(code Code) int {
	switch code {
	case InvalidArgument:
		return 2
	case Unauthenticated, Unverified, Exhausted:
		return 3
	case Unavailable:
		return 4
	default:
		return 1
	}
}
