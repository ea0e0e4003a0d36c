package user_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sobernest/pkg/user"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	provider := user.User{ID: uuid.New(), Email: "p@example.com", Role: user.RoleProvider, BillingCustomerID: "cus_1"}
	admin1 := user.User{ID: uuid.New(), Email: "b-admin@example.com", Role: user.RoleAdmin}
	admin2 := user.User{ID: uuid.New(), Email: "a-admin@example.com", Role: user.RoleAdmin}
	store := user.NewMemoryStore(provider, admin1, admin2)
	ctx := context.Background()

	got, err := store.Get(ctx, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, provider, got)

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, user.ErrUserNotFound)

	got, err = store.GetByBillingCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, provider.ID, got.ID)

	_, err = store.GetByBillingCustomerID(ctx, "")
	assert.ErrorIs(t, err, user.ErrUserNotFound)

	emails, err := user.AdminEmails(store)(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-admin@example.com", "b-admin@example.com"}, emails)
}
