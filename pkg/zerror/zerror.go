// Package zerror carries an application status and a stable code alongside a
// Go error so transports can map failures without string matching.
package zerror

import (
	"errors"
	"fmt"
)

type ZError struct {
	parent error
	status Status
	code   string
	msg    string
}

// New defines a sentinel error. code is upper snake case, e.g. PRODUCT_NOT_FOUND.
func New(status Status, code, msg string) ZError {
	return ZError{
		status: status,
		code:   code,
		msg:    msg,
	}
}

func (e ZError) Error() string {
	if e.parent != nil {
		return fmt.Sprintf("Code=%s, Msg=%s, Parent=(%v)", e.code, e.msg, e.parent)
	}
	return fmt.Sprintf("Code=%s, Msg=%s", e.code, e.msg)
}

// WrapParent returns a copy of e caused by parent.
func (e ZError) WrapParent(parent error) ZError {
	if parent == nil {
		return e
	}
	e.parent = parent
	return e
}

// WithMsg returns a copy of e with a more specific message. The code is kept,
// so errors.Is still matches the sentinel.
func (e ZError) WithMsg(format string, args ...any) ZError {
	e.msg = fmt.Sprintf(format, args...)
	return e
}

func (e ZError) Unwrap() error {
	return e.parent
}

// Is matches any ZError with the same code.
func (e ZError) Is(target error) bool {
	var t ZError
	if !errors.As(target, &t) {
		return false
	}
	return e.code == t.code
}

func (e ZError) Status() Status { return e.status }
func (e ZError) Code() string   { return e.code }
func (e ZError) Msg() string    { return e.msg }
func (e ZError) Parent() error  { return e.parent }

func NewNotFound(code, msg string) ZError {
	return New(StatusNotFound, code, msg)
}

func NewConflict(code, msg string) ZError {
	return New(StatusConflict, code, msg)
}

func NewValidationFailed(code, msg string) ZError {
	return New(StatusValidationFailed, code, msg)
}

func NewServiceUnavailable(code, msg string) ZError {
	return New(StatusServiceUnavailable, code, msg)
}
