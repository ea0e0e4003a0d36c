package subscription

import "time"

// Config controls the reconciler.
type Config struct {
	// BillingProvider selects the webhook source: "stripe" or "paddle".
	BillingProvider string        `env:"BILLING_PROVIDER" envDefault:"stripe"`
	GracePeriod     time.Duration `env:"GRACE_PERIOD" envDefault:"168h"`
	// EventRetention is how long processed event ids are remembered.
	EventRetention time.Duration `env:"BILLING_EVENT_RETENTION" envDefault:"720h"`
	LockTTL        time.Duration `env:"BILLING_LOCK_TTL" envDefault:"30s"`
}

type StripeConfig struct {
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

type PaddleConfig struct {
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
}
