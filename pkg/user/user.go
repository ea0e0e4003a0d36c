// Package user holds the marketplace accounts the lifecycle core reads:
// providers who pay for listings, tenants who apply, and admins who get
// operator notifications.
package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleTenant   Role = "tenant"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID    uuid.UUID
	Email string
	Name  string
	Role  Role
	// BillingCustomerID is the payment provider's customer reference,
	// set at checkout.
	BillingCustomerID string
	CreatedAt         time.Time
}

// Store is the read side of user persistence.
type Store interface {
	// Get returns ErrUserNotFound for unknown ids.
	Get(ctx context.Context, id uuid.UUID) (User, error)
	// GetByBillingCustomerID returns ErrUserNotFound when no user carries the reference.
	GetByBillingCustomerID(ctx context.Context, customerID string) (User, error)
	ListByRole(ctx context.Context, role Role) ([]User, error)
}

// AdminEmails lists every admin address in store.
func AdminEmails(store Store) func(ctx context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		admins, err := store.ListByRole(ctx, RoleAdmin)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(admins))
		for _, a := range admins {
			if a.Email != "" {
				out = append(out, a.Email)
			}
		}
		return out, nil
	}
}
