package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks bad input at submission; nothing is enqueued.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidTransition marks an illegal state machine move; rejected
	// without side effects.
	ErrInvalidTransition = errors.New("invalid state transition")

	ErrTaskNotFound = errors.New("task not found")
	ErrQueueClosed  = errors.New("queue is shut down")
	ErrSlotOccupied = errors.New("task already holds a worker slot")
)

// TransitionError carries the rejected from/to pair. It matches
// ErrInvalidTransition via errors.Is.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
