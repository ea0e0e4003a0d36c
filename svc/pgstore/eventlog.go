package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sobernest/pkg/subscription"
)

// EventLog records processed billing event ids in processed_billing_events.
// Use it when Redis is not configured and more than one instance receives
// webhooks.
type EventLog struct {
	pool *pgxpool.Pool
}

func NewEventLog(pool *pgxpool.Pool) *EventLog {
	return &EventLog{pool: pool}
}

func (l *EventLog) MarkProcessed(ctx context.Context, id string) (bool, error) {
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO processed_billing_events (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`, id)
	if err != nil {
		return false, errors.Join(subscription.ErrFailedToRecordEvent, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (l *EventLog) Seen(ctx context.Context, id string) (bool, error) {
	var seen bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_billing_events WHERE event_id = $1)`, id).Scan(&seen)
	if err != nil {
		return false, errors.Join(subscription.ErrFailedToRecordEvent, err)
	}
	return seen, nil
}

// Purge drops ids older than retention and reports how many went.
func (l *EventLog) Purge(ctx context.Context, retention time.Duration) (int, error) {
	tag, err := l.pool.Exec(ctx,
		`DELETE FROM processed_billing_events WHERE processed_at < $1`, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge processed billing events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
