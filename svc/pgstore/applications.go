package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sobernest/pkg/application"
	"github.com/dmitrymomot/sobernest/pkg/reminder"
)

type ApplicationStore struct {
	pool *pgxpool.Pool
}

func NewApplicationStore(pool *pgxpool.Pool) *ApplicationStore {
	return &ApplicationStore{pool: pool}
}

func (s *ApplicationStore) ListUpcomingMoveIns(ctx context.Context, from, to time.Time) ([]application.Application, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.tenant_id, a.listing_id, l.title, a.status, a.move_in_date, a.move_in_reminder
		FROM applications a
		JOIN listings l ON l.id = a.listing_id
		WHERE a.status = 'approved' AND a.move_in_reminder = 'pending'
		  AND a.move_in_date >= $1 AND a.move_in_date <= $2
		ORDER BY a.move_in_date`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("list upcoming move-ins: %w", err)
	}
	defer rows.Close()

	var out []application.Application
	for rows.Next() {
		var (
			a                application.Application
			status, reminded string
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ListingID, &a.ListingTitle, &status, &a.MoveInDate, &reminded); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		a.Status = application.Status(status)
		if a.MoveInReminder, err = reminder.Parse(reminded); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkMoveInReminderSent flips pending to sent in one conditional update.
func (s *ApplicationStore) MarkMoveInReminderSent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE applications SET move_in_reminder = 'sent' WHERE id = $1 AND move_in_reminder = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("mark move-in reminder sent: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check application: %w", err)
	}
	if !exists {
		return application.ErrApplicationNotFound
	}
	return application.ErrReminderAlreadySent
}
