package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ListingStore struct {
	pool *pgxpool.Pool
}

func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// SetVisibilityByProvider only touches rows whose flag differs, so the
// returned count is what actually changed.
func (s *ListingStore) SetVisibilityByProvider(ctx context.Context, providerID uuid.UUID, visible bool) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET is_visible = $2 WHERE provider_id = $1 AND is_visible <> $2`,
		providerID, visible)
	if err != nil {
		return 0, fmt.Errorf("set listing visibility for provider %s: %w", providerID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *ListingStore) CountPublished(ctx context.Context, providerID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM listings WHERE provider_id = $1 AND published`, providerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count published listings: %w", err)
	}
	return n, nil
}
