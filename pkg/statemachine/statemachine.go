package statemachine

// Guard decides at fire time whether a registered transition may proceed.
type Guard[S comparable, E comparable] func(from S, event E) bool

type transition[S comparable, E comparable] struct {
	to     S
	guards []Guard[S, E]
}

// Table is an immutable-after-build transition table keyed by (from, event).
// It holds no current state: callers keep state in their own records and ask
// the table where an event leads. This lets one table serve every row of a
// persisted entity.
type Table[S comparable, E comparable] struct {
	transitions map[S]map[E][]transition[S, E]
}

// New creates an empty transition table.
func New[S comparable, E comparable]() *Table[S, E] {
	return &Table[S, E]{transitions: make(map[S]map[E][]transition[S, E])}
}

// Allow registers event as moving each of from to to. Guards must all pass.
// Registering the same (from, event) pair twice keeps both; the first whose
// guards pass wins.
func (t *Table[S, E]) Allow(event E, to S, from []S, guards ...Guard[S, E]) *Table[S, E] {
	for _, f := range from {
		if _, ok := t.transitions[f]; !ok {
			t.transitions[f] = make(map[E][]transition[S, E])
		}
		t.transitions[f][event] = append(t.transitions[f][event], transition[S, E]{to: to, guards: guards})
	}
	return t
}

// Next returns the target state for event fired in from.
func (t *Table[S, E]) Next(from S, event E) (S, error) {
	var zero S

	candidates := t.transitions[from][event]
	if len(candidates) == 0 {
		return zero, newTransitionError(from, event, false)
	}

	for _, c := range candidates {
		if allPass(c.guards, from, event) {
			return c.to, nil
		}
	}

	return zero, newTransitionError(from, event, true)
}

// Can reports whether Next would succeed.
func (t *Table[S, E]) Can(from S, event E) bool {
	_, err := t.Next(from, event)
	return err == nil
}

func allPass[S comparable, E comparable](guards []Guard[S, E], from S, event E) bool {
	for _, g := range guards {
		if g != nil && !g(from, event) {
			return false
		}
	}
	return true
}
