// Package listing covers the part of a property listing the subscription
// lifecycle touches: its visibility flag and whether it counts against the
// provider's allowance.
package listing

import (
	"context"

	"github.com/google/uuid"
)

type Listing struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Title      string
	// IsVisible is flipped by the lifecycle; false hides the listing from search.
	IsVisible bool
	// Published listings count against the provider's allowance.
	Published bool
}

type Store interface {
	// SetVisibilityByProvider sets IsVisible on every listing of the provider
	// and returns how many rows actually changed.
	SetVisibilityByProvider(ctx context.Context, providerID uuid.UUID, visible bool) (int, error)
	CountPublished(ctx context.Context, providerID uuid.UUID) (int, error)
}
