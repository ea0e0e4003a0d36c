package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sobernest/pkg/pg"
	"github.com/dmitrymomot/sobernest/pkg/user"
)

const userColumns = `id, email, name, role, COALESCE(billing_customer_id, ''), created_at`

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (user.User, error) {
	return s.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *UserStore) GetByBillingCustomerID(ctx context.Context, customerID string) (user.User, error) {
	if customerID == "" {
		return user.User{}, user.ErrUserNotFound
	}
	return s.one(ctx, `SELECT `+userColumns+` FROM users WHERE billing_customer_id = $1`, customerID)
}

func (s *UserStore) ListByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY email`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	defer rows.Close()

	var out []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *UserStore) one(ctx context.Context, query string, arg any) (user.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, query, arg))
	if pg.IsNotFoundError(err) {
		return user.User{}, user.ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (user.User, error) {
	var (
		u    user.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.BillingCustomerID, &u.CreatedAt); err != nil {
		return u, err
	}
	u.Role = user.Role(role)
	return u, nil
}
