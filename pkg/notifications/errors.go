package notifications

import "errors"

var (
	ErrNoRecipients     = errors.New("notifications: no admin recipients")
	ErrPartialDelivery  = errors.New("notifications: delivery failed for some recipients")
	ErrRenderingMessage = errors.New("notifications: failed to render message")
)
