package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrInvalidConfig = errors.New("pg: invalid connection config")
	ErrConnect       = errors.New("pg: database unreachable")
	ErrPingFailed    = errors.New("pg: ping failed")
	ErrMigrate       = errors.New("pg: migration failed")
	ErrTxFailed      = errors.New("pg: transaction failed")
)

// uniqueViolation is the SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

func IsNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKeyError reports a unique constraint violation, such as a second
// active enrollment for the same user and workflow.
func IsDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
