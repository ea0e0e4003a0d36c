package workflow

import "errors"

var (
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrEnrollmentNotFound = errors.New("workflow enrollment not found")
	ErrInvalidTransition  = errors.New("invalid enrollment state transition")
	ErrInvalidSeed        = errors.New("invalid workflow seed")
	ErrFailedToReadSeed   = errors.New("failed to read workflow seed file")
)
