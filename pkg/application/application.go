// Package application tracks tenant applications far enough to send
// move-in reminders.
package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sobernest/pkg/reminder"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type Application struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ListingID      uuid.UUID
	ListingTitle   string
	Status         Status
	MoveInDate     *time.Time
	MoveInReminder reminder.State
}

type Store interface {
	// ListUpcomingMoveIns returns approved applications whose move-in date
	// falls in [from, to] and whose reminder is still pending.
	ListUpcomingMoveIns(ctx context.Context, from, to time.Time) ([]Application, error)
	// MarkMoveInReminderSent fires the sent event on the application's reminder.
	// It returns ErrReminderAlreadySent when another run got there first.
	MarkMoveInReminderSent(ctx context.Context, id uuid.UUID) error
}

// DueForMoveInReminder reports whether a should be selected at now.
func (a Application) DueForMoveInReminder(now time.Time, lookahead time.Duration) bool {
	if a.Status != StatusApproved || a.MoveInDate == nil || a.MoveInReminder.IsSent() {
		return false
	}
	d := *a.MoveInDate
	return !d.Before(now) && !d.After(now.Add(lookahead))
}
