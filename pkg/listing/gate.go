package listing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sobernest/pkg/logger"
	"github.com/dmitrymomot/sobernest/pkg/metrics"
)

// Gate hides and restores a provider's listings. Both operations are
// idempotent and report how many listings changed.
type Gate struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Lifecycle
}

type GateOption func(*Gate)

func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = l
	}
}

func WithMetrics(m *metrics.Lifecycle) GateOption {
	return func(g *Gate) {
		g.metrics = m
	}
}

func NewGate(store Store, opts ...GateOption) *Gate {
	g := &Gate{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) HideProviderListings(ctx context.Context, providerID uuid.UUID) (int, error) {
	n, err := g.store.SetVisibilityByProvider(ctx, providerID, false)
	if err != nil {
		return 0, fmt.Errorf("hide listings: %w", err)
	}
	g.metrics.ListingsHidden(n)
	if n > 0 {
		g.logger.InfoContext(ctx, "provider listings hidden",
			logger.Component("listing_gate"), logger.ProviderID(providerID), logger.Count(n))
	}
	return n, nil
}

func (g *Gate) ShowProviderListings(ctx context.Context, providerID uuid.UUID) (int, error) {
	n, err := g.store.SetVisibilityByProvider(ctx, providerID, true)
	if err != nil {
		return 0, fmt.Errorf("show listings: %w", err)
	}
	g.metrics.ListingsRestored(n)
	if n > 0 {
		g.logger.InfoContext(ctx, "provider listings restored",
			logger.Component("listing_gate"), logger.ProviderID(providerID), logger.Count(n))
	}
	return n, nil
}
