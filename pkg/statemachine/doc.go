// Package statemachine provides a small generic transition table.
//
// A Table maps (state, event) pairs to target states, optionally guarded.
// It is stateless: persisted entities keep their own state column and consult
// the table to validate and compute transitions.
//
//	reminders := statemachine.New[ReminderState, ReminderEvent]().
//		Allow(ReminderSent, Sent, []ReminderState{Pending}).
//		Allow(ReminderReset, Pending, []ReminderState{Pending, Sent})
//
//	next, err := reminders.Next(current, ReminderSent)
//	if statemachine.IsNoTransitionAvailableError(err) {
//		// already sent
//	}
package statemachine
