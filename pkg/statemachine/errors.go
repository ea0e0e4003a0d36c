package statemachine

import (
	"errors"
	"fmt"
)

// TransitionError is returned by Table.Next when an event cannot fire.
// Rejected distinguishes "registered but every guard said no" from
// "nothing registered for this pair".
type TransitionError struct {
	From     string
	Event    string
	Rejected bool
}

func (e *TransitionError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("statemachine: %s on %q rejected by guards", e.Event, e.From)
	}
	return fmt.Sprintf("statemachine: %s not allowed in %q", e.Event, e.From)
}

func newTransitionError(from, event any, rejected bool) *TransitionError {
	return &TransitionError{From: fmt.Sprint(from), Event: fmt.Sprint(event), Rejected: rejected}
}

func IsNoTransitionAvailableError(err error) bool {
	var e *TransitionError
	return errors.As(err, &e) && !e.Rejected
}

func IsTransitionRejectedError(err error) bool {
	var e *TransitionError
	return errors.As(err, &e) && e.Rejected
}
