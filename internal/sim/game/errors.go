package game

import "errors"

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientCapacity = errors.New("insufficient compute capacity")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrBadRequest           = errors.New("bad request")
)

// transitionError values are distinct sentinels that also match
// ErrInvalidTransition under errors.Is.
type transitionError struct{ msg string }

func (e *transitionError) Error() string        { return e.msg }
func (e *transitionError) Is(target error) bool { return target == ErrInvalidTransition }

var (
	ErrAlreadyRunning error = &transitionError{msg: "training run already active"}
	ErrLocked         error = &transitionError{msg: "locked"}
)
