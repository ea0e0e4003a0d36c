package lifecycle

import "errors"

var (
	ErrAlreadyStarted = errors.New("lifecycle: scheduler already started")
	ErrPassPanicked   = errors.New("lifecycle: scheduler pass panicked")
	ErrStopTimeout    = errors.New("lifecycle: scheduler did not stop in time")
)
