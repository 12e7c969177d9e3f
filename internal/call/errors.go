package call

import (
	"errors"
	"fmt"
)

var (
	ErrCallInProgress = errors.New("a call is already in progress")
	ErrNotInRoom      = errors.New("not in a room")
	ErrNoRoom         = errors.New("no room given")
	ErrEmptyMessage   = errors.New("empty chat message")
	ErrMediaAccess    = errors.New("could not access local media")
	ErrSignaling      = errors.New("signaling server error")
	ErrRoomFull       = errors.New("room is full")
	ErrCallEnded      = errors.New("call ended")
	ErrSessionClosed  = errors.New("session closed")
)

// Error ties a failure to the session operation that hit it.
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

// categorized wraps cause under one of the sentinel categories so callers
// can test for either.
func categorized(op string, category, cause error, details string) *Error {
	return WrapError(op, fmt.Errorf("%w: %w", category, cause), details)
}
