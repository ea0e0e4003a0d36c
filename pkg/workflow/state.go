package workflow

import (
	"errors"

	"github.com/dmitrymomot/sobernest/pkg/statemachine"
)

type stateEvent string

const (
	eventComplete stateEvent = "complete"
	eventCancel   stateEvent = "cancel"
	eventResume   stateEvent = "resume"
)

var enrollmentStates = statemachine.New[State, stateEvent]().
	Allow(eventComplete, StateCompleted, []State{StateActive}).
	Allow(eventCancel, StateCanceled, []State{StateActive}).
	Allow(eventResume, StateActive, []State{StateCanceled})

func (e *Enrollment) fire(event stateEvent) error {
	next, err := enrollmentStates.Next(e.State, event)
	if err != nil {
		return errors.Join(ErrInvalidTransition, err)
	}
	e.State = next
	return nil
}
