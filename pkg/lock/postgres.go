package lock

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAdvisoryLocker holds keys as session-level advisory locks. Waiting polls
// pg_try_advisory_lock and returns the connection to the pool between tries,
// so only holders pin a connection. The lock lives as long as the holder's
// connection; ttl bounds how long Acquire waits for it.
type PGAdvisoryLocker struct {
	pool       *pgxpool.Pool
	retryEvery time.Duration
}

// PGOption configures a PGAdvisoryLocker.
type PGOption func(*PGAdvisoryLocker)

// WithPGRetryInterval sets how often a blocked Acquire polls. Default 50ms.
func WithPGRetryInterval(d time.Duration) PGOption {
	return func(l *PGAdvisoryLocker) {
		if d > 0 {
			l.retryEvery = d
		}
	}
}

func NewPGAdvisoryLocker(pool *pgxpool.Pool, opts ...PGOption) *PGAdvisoryLocker {
	l := &PGAdvisoryLocker{pool: pool, retryEvery: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *PGAdvisoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	id := advisoryKey(key)
	if ttl > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ttl)
		defer cancel()
	}

	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()

	for {
		conn, err := l.tryLock(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrAcquireTimeout, err)
			}
			return nil, errors.Join(ErrLockBackend, err)
		}
		if conn != nil {
			return unlocker(conn, id), nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrAcquireTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// tryLock returns the connection holding the lock, or nil if another session
// has it.
func (l *PGAdvisoryLocker) tryLock(ctx context.Context, id int64) (*pgxpool.Conn, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&ok); err != nil {
		conn.Release()
		return nil, err
	}
	if !ok {
		conn.Release()
		return nil, nil
	}
	return conn, nil
}

func unlocker(conn *pgxpool.Conn, id int64) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", id); err != nil {
				// Unlock failed; drop the connection so the session lock dies with it.
				_ = conn.Conn().Close(ctx)
			}
			conn.Release()
		})
	}
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
