package notifications

import (
	"time"
)

// Kind identifies what happened. Operators filter on it.
type Kind string

const (
	KindSubscriptionStarted  Kind = "subscription_started"
	KindSubscriptionCanceled Kind = "subscription_canceled"
	KindListingsHidden       Kind = "listings_hidden"
)

// Notification is a message for marketplace operators.
type Notification struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
