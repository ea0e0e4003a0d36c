package listing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sobernest/pkg/listing"
	"github.com/dmitrymomot/sobernest/pkg/metrics"
)

type failingStore struct{}

func (failingStore) SetVisibilityByProvider(context.Context, uuid.UUID, bool) (int, error) {
	return 0, errors.New("connection reset")
}

func (failingStore) CountPublished(context.Context, uuid.UUID) (int, error) {
	return 0, errors.New("connection reset")
}

func TestGate(t *testing.T) {
	t.Parallel()

	provider := uuid.New()
	other := uuid.New()
	store := listing.NewMemoryStore(
		listing.Listing{ID: uuid.New(), ProviderID: provider, IsVisible: true, Published: true},
		listing.Listing{ID: uuid.New(), ProviderID: provider, IsVisible: true},
		listing.Listing{ID: uuid.New(), ProviderID: other, IsVisible: true, Published: true},
	)
	gate := listing.NewGate(store, listing.WithMetrics(metrics.New(prometheus.NewRegistry())))
	ctx := context.Background()

	n, err := gate.HideProviderListings(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, l := range store.ByProvider(provider) {
		assert.False(t, l.IsVisible)
	}
	for _, l := range store.ByProvider(other) {
		assert.True(t, l.IsVisible, "other providers are untouched")
	}

	n, err = gate.HideProviderListings(ctx, provider)
	require.NoError(t, err)
	assert.Zero(t, n, "hide is idempotent")
	assert.Equal(t, 2, store.Writes())

	n, err = gate.ShowProviderListings(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = gate.ShowProviderListings(ctx, provider)
	require.NoError(t, err)
	assert.Zero(t, n, "show is idempotent")

	published, err := store.CountPublished(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, 1, published)
}

func TestGate_StoreError(t *testing.T) {
	t.Parallel()

	gate := listing.NewGate(failingStore{})
	_, err := gate.HideProviderListings(context.Background(), uuid.New())
	assert.Error(t, err)
	_, err = gate.ShowProviderListings(context.Background(), uuid.New())
	assert.Error(t, err)
}
