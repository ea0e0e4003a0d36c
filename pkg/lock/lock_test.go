package lock_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sobernest/pkg/lock"
)

func newRedisLocker(t *testing.T) (*lock.RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.NewRedisLocker(client, lock.WithRetryInterval(5*time.Millisecond)), mr
}

// assertSerialized runs n workers on one key and checks that the critical
// section never has more than one occupant.
func assertSerialized(t *testing.T, l lock.Locker, n int) {
	t.Helper()

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		counter atomic.Int32
		wg      sync.WaitGroup
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "provider:1", time.Second)
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			v := counter.Load()
			time.Sleep(time.Millisecond)
			counter.Store(v + 1)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "critical sections overlapped")
	assert.Equal(t, int32(n), counter.Load())
}

func TestMemoryLocker(t *testing.T) {
	t.Parallel()

	t.Run("serializes one key", func(t *testing.T) {
		t.Parallel()
		l := lock.NewMemoryLocker()
		assertSerialized(t, l, 20)
		assert.Equal(t, 0, l.Size())
	})

	t.Run("independent keys do not block", func(t *testing.T) {
		t.Parallel()
		l := lock.NewMemoryLocker()

		r1, err := l.Acquire(context.Background(), "a", 0)
		require.NoError(t, err)
		defer r1()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		r2, err := l.Acquire(ctx, "b", 0)
		require.NoError(t, err)
		r2()
	})

	t.Run("acquire honours context", func(t *testing.T) {
		t.Parallel()
		l := lock.NewMemoryLocker()

		release, err := l.Acquire(context.Background(), "a", 0)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Acquire(ctx, "a", 0)
		assert.ErrorIs(t, err, lock.ErrAcquireTimeout)

		release()
		release()
		assert.Equal(t, 0, l.Size())
	})
}

func TestRedisLocker(t *testing.T) {
	t.Parallel()

	t.Run("serializes one key", func(t *testing.T) {
		t.Parallel()
		l, _ := newRedisLocker(t)
		assertSerialized(t, l, 10)
	})

	t.Run("release removes only our lease", func(t *testing.T) {
		t.Parallel()
		l, mr := newRedisLocker(t)

		release, err := l.Acquire(context.Background(), "p", time.Second)
		require.NoError(t, err)
		assert.True(t, mr.Exists("lock:p"))

		// Lease expired and was taken by someone else.
		mr.FastForward(2 * time.Second)
		require.NoError(t, mr.Set("lock:p", "other-owner"))

		release()
		got, err := mr.Get("lock:p")
		require.NoError(t, err)
		assert.Equal(t, "other-owner", got)
	})

	t.Run("lease expires after ttl", func(t *testing.T) {
		t.Parallel()
		l, mr := newRedisLocker(t)

		_, err := l.Acquire(context.Background(), "p", 100*time.Millisecond)
		require.NoError(t, err)

		mr.FastForward(200 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		release, err := l.Acquire(ctx, "p", time.Second)
		require.NoError(t, err)
		release()
		assert.False(t, mr.Exists("lock:p"))
	})

	t.Run("blocked acquire times out", func(t *testing.T) {
		t.Parallel()
		l, _ := newRedisLocker(t)

		release, err := l.Acquire(context.Background(), "p", time.Minute)
		require.NoError(t, err)
		defer release()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err = l.Acquire(ctx, "p", time.Minute)
		assert.ErrorIs(t, err, lock.ErrAcquireTimeout)
	})
}

// newPGLocker uses a two-connection pool. Skipped unless PG_CONN_URL is set.
func newPGLocker(t *testing.T) (*lock.PGAdvisoryLocker, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL not set")
	}
	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return lock.NewPGAdvisoryLocker(pool, lock.WithPGRetryInterval(5*time.Millisecond)), pool
}

func TestPGAdvisoryLocker(t *testing.T) {
	t.Parallel()

	t.Run("serializes one key", func(t *testing.T) {
		t.Parallel()
		l, _ := newPGLocker(t)
		assertSerialized(t, l, 6)
	})

	t.Run("wait is bounded by ttl", func(t *testing.T) {
		t.Parallel()
		l, _ := newPGLocker(t)
		key := "pg-ttl-" + t.Name()

		release, err := l.Acquire(context.Background(), key, time.Minute)
		require.NoError(t, err)
		defer release()

		start := time.Now()
		_, err = l.Acquire(context.Background(), key, 50*time.Millisecond)
		assert.ErrorIs(t, err, lock.ErrAcquireTimeout)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("waiters do not pin connections", func(t *testing.T) {
		t.Parallel()
		l, pool := newPGLocker(t)
		key := "pg-pool-" + t.Name()

		release, err := l.Acquire(context.Background(), key, time.Minute)
		require.NoError(t, err)

		waited := make(chan error, 1)
		go func() {
			r, err := l.Acquire(context.Background(), key, 5*time.Second)
			if err == nil {
				r()
			}
			waited <- err
		}()

		// One connection is the holder's; the waiter must leave the other free.
		time.Sleep(50 * time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		conn, err := pool.Acquire(ctx)
		require.NoError(t, err)
		conn.Release()

		release()
		require.NoError(t, <-waited)
	})
}

func TestAdvisoryKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, lock.AdvisoryKey("provider:1"), lock.AdvisoryKey("provider:1"))
	assert.NotEqual(t, lock.AdvisoryKey("provider:1"), lock.AdvisoryKey("provider:2"))
}
