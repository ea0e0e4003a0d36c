// Package reminder models the per-cycle "have we told them yet" flag used by
// renewal and move-in reminders as an explicit two-state machine.
//
// A reminder starts Pending. A successful send fires EventSent and moves it
// to Sent; a failed send fires nothing, so the reminder is picked up again on
// the next scheduler tick. A new billing cycle fires EventReset.
package reminder

import (
	"github.com/dmitrymomot/sobernest/pkg/statemachine"
)

type State string

const (
	Pending State = "pending"
	Sent    State = "sent"
)

type Event string

const (
	EventSent  Event = "sent"
	EventReset Event = "reset"
)

var table = statemachine.New[State, Event]().
	Allow(EventSent, Sent, []State{Pending}).
	Allow(EventReset, Pending, []State{Pending, Sent})

// Parse maps a stored value to a State. Empty means Pending.
func Parse(s string) (State, error) {
	switch State(s) {
	case "", Pending:
		return Pending, nil
	case Sent:
		return Sent, nil
	}
	return "", ErrUnknownState
}

// Fire returns the state event leads to. Firing EventSent on a Sent reminder
// is an error: the caller was about to send a duplicate.
func (s State) Fire(event Event) (State, error) {
	return table.Next(s.normalize(), event)
}

// IsSent reports whether the reminder for the current cycle went out.
func (s State) IsSent() bool {
	return s.normalize() == Sent
}

func (s State) String() string {
	return string(s.normalize())
}

func (s State) normalize() State {
	if s == "" {
		return Pending
	}
	return s
}
