package call

import (
	"errors"
	"fmt"
)

var (
	ErrSignalingError   = errors.New("signaling server error")
	ErrDevicesUnusable  = errors.New("media devices unavailable")
	ErrNothingToUnmute  = errors.New("microphone needs an active camera")
	ErrScreenNotAllowed = errors.New("screen capture not permitted")
)

type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
