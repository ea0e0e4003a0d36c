package queue

import "errors"

var (
	ErrHandlerNil             = errors.New("queue: task handler is nil")
	ErrNoScheduleSpecified    = errors.New("queue: no schedule specified for periodic task")
	ErrTaskAlreadyRegistered  = errors.New("queue: task already registered")
	ErrSchedulerNotConfigured = errors.New("queue: scheduler has no registered tasks")
	ErrAlreadyStarted         = errors.New("queue: scheduler already started")
	ErrStopTimeout            = errors.New("queue: scheduler did not stop in time")
	ErrTaskPanicked           = errors.New("queue: task panicked")
)
