// Package lock provides keyed mutual exclusion for read-modify-write
// sequences that must not interleave, such as two webhook deliveries for the
// same provider.
package lock

import (
	"context"
	"time"
)

// Locker serializes work per key.
type Locker interface {
	// Acquire blocks until the key is held or ctx is done. The returned
	// release func is safe to call more than once. ttl bounds how long a
	// crashed holder can keep the key; implementations without a lease
	// ignore it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
