package subscription_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sobernest/pkg/subscription"
)

const paddleSecret = "pdl_ntfset_test"

func signPaddle(secret, payload string) string {
	ts := fmt.Sprint(time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + ":" + payload))
	return "ts=" + ts + ";h1=" + hex.EncodeToString(mac.Sum(nil))
}

func newPaddle(t *testing.T) *subscription.PaddleProvider {
	t.Helper()
	p, err := subscription.NewPaddleProvider(subscription.PaddleConfig{WebhookSecret: paddleSecret})
	require.NoError(t, err)
	return p
}

func TestPaddleProvider_ParseWebhook(t *testing.T) {
	t.Parallel()

	p := newPaddle(t)
	occurred := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		payload string
		want    subscription.BillingEvent
	}{
		{
			name:    "scheduled cancellation",
			payload: `{"event_id":"evt_1","event_type":"subscription.updated","occurred_at":"2025-03-02T10:00:00Z","data":{"id":"sub_1","status":"active","customer_id":"ctm_1","scheduled_change":{"action":"cancel"},"current_billing_period":{"ends_at":"2025-04-02T10:00:00Z"}}}`,
			want: subscription.BillingEvent{
				ID: "evt_1", Type: subscription.EventSubscriptionUpdated, ProviderType: "subscription.updated",
				CustomerID: "ctm_1", SubscriptionID: "sub_1", Status: "active", CancelAtPeriodEnd: true,
				CurrentPeriodEnd: &periodEnd, OccurredAt: occurred,
			},
		},
		{
			name:    "resumed reads as update",
			payload: `{"event_id":"evt_2","event_type":"subscription.resumed","occurred_at":"2025-03-02T10:00:00Z","data":{"id":"sub_1","status":"active","customer_id":"ctm_1"}}`,
			want: subscription.BillingEvent{
				ID: "evt_2", Type: subscription.EventSubscriptionUpdated, ProviderType: "subscription.resumed",
				CustomerID: "ctm_1", SubscriptionID: "sub_1", Status: "active", OccurredAt: occurred,
			},
		},
		{
			name:    "canceled",
			payload: `{"event_id":"evt_3","event_type":"subscription.canceled","occurred_at":"2025-03-02T10:00:00Z","data":{"id":"sub_1","status":"canceled","customer_id":"ctm_1"}}`,
			want: subscription.BillingEvent{
				ID: "evt_3", Type: subscription.EventSubscriptionCanceled, ProviderType: "subscription.canceled",
				CustomerID: "ctm_1", SubscriptionID: "sub_1", Status: "canceled", OccurredAt: occurred,
			},
		},
		{
			name:    "subscription transaction completed",
			payload: `{"event_id":"evt_4","event_type":"transaction.completed","occurred_at":"2025-03-02T10:00:00Z","data":{"id":"txn_1","status":"completed","customer_id":"ctm_1","subscription_id":"sub_1","billing_period":{"ends_at":"2025-04-02T10:00:00Z"}}}`,
			want: subscription.BillingEvent{
				ID: "evt_4", Type: subscription.EventPaymentSucceeded, ProviderType: "transaction.completed",
				CustomerID: "ctm_1", SubscriptionID: "sub_1", Status: "completed", CurrentPeriodEnd: &periodEnd, OccurredAt: occurred,
			},
		},
		{
			name:    "one-off transaction",
			payload: `{"event_id":"evt_5","event_type":"transaction.completed","occurred_at":"2025-03-02T10:00:00Z","data":{"id":"txn_2","status":"completed","customer_id":"ctm_1"}}`,
			want: subscription.BillingEvent{
				ID: "evt_5", Type: subscription.EventIgnored, ProviderType: "transaction.completed",
				CustomerID: "ctm_1", Status: "completed", OccurredAt: occurred,
			},
		},
		{
			name:    "payment failed",
			payload: `{"event_id":"evt_6","event_type":"transaction.payment_failed","occurred_at":"2025-03-02T10:00:00Z","data":{"id":"txn_3","status":"past_due","customer_id":"ctm_1","subscription_id":"sub_1"}}`,
			want: subscription.BillingEvent{
				ID: "evt_6", Type: subscription.EventPaymentFailed, ProviderType: "transaction.payment_failed",
				CustomerID: "ctm_1", SubscriptionID: "sub_1", Status: "past_due", OccurredAt: occurred,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := p.ParseWebhook(context.Background(), []byte(tt.payload), signPaddle(paddleSecret, tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaddleProvider_Verification(t *testing.T) {
	t.Parallel()

	p := newPaddle(t)
	payload := `{"event_id":"evt_1","event_type":"subscription.canceled","occurred_at":"2025-03-02T10:00:00Z","data":{"id":"sub_1","customer_id":"ctm_1"}}`

	_, err := p.ParseWebhook(context.Background(), []byte(payload), signPaddle("pdl_other", payload))
	assert.ErrorIs(t, err, subscription.ErrWebhookVerificationFailed)

	_, err = p.ParseWebhook(context.Background(), []byte(payload), "")
	assert.ErrorIs(t, err, subscription.ErrWebhookVerificationFailed)

	garbage := `{"event_id":""}`
	_, err = p.ParseWebhook(context.Background(), []byte(garbage), signPaddle(paddleSecret, garbage))
	assert.ErrorIs(t, err, subscription.ErrMalformedWebhook)
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	p, err := subscription.NewProvider(
		subscription.Config{BillingProvider: "paddle"},
		subscription.StripeConfig{},
		subscription.PaddleConfig{WebhookSecret: paddleSecret},
	)
	require.NoError(t, err)
	assert.Equal(t, "paddle", p.Name())
	assert.Equal(t, "Paddle-Signature", p.SignatureHeader())

	_, err = subscription.NewProvider(subscription.Config{BillingProvider: "braintree"}, subscription.StripeConfig{}, subscription.PaddleConfig{})
	assert.ErrorIs(t, err, subscription.ErrUnknownBillingProvider)
}
