package application

import "errors"

var (
	ErrApplicationNotFound = errors.New("application not found")
	ErrReminderAlreadySent = errors.New("move-in reminder already sent")
)
