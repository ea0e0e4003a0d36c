package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("email: send failed")
	ErrInvalidConfig     = errors.New("email: invalid sender config")
	ErrInvalidParams     = errors.New("email: invalid message")
)
