package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventLog records processed billing event ids so redelivered events have
// no second effect. The reconciler calls Seen and MarkProcessed under the
// provider lock, marking only after the event was applied.
type EventLog interface {
	// Seen reports whether id was already recorded.
	Seen(ctx context.Context, id string) (bool, error)
	// MarkProcessed records id and reports whether this is the first time it
	// was recorded.
	MarkProcessed(ctx context.Context, id string) (bool, error)
}

type MemoryEventLog struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryEventLog remembers ids for ttl; zero keeps them forever.
func NewMemoryEventLog(ttl time.Duration) *MemoryEventLog {
	return &MemoryEventLog{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (l *MemoryEventLog) MarkProcessed(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if at, ok := l.seen[id]; ok && (l.ttl <= 0 || now.Sub(at) < l.ttl) {
		return false, nil
	}
	l.seen[id] = now
	return true, nil
}

func (l *MemoryEventLog) Seen(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.seen[id]
	return ok && (l.ttl <= 0 || l.now().Sub(at) < l.ttl), nil
}

// RedisEventLog stores ids as SET NX keys with a TTL, shared by every
// instance behind the webhook endpoint.
type RedisEventLog struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisEventLog(client redis.UniversalClient, ttl time.Duration) *RedisEventLog {
	return &RedisEventLog{client: client, prefix: "billing:event:", ttl: ttl}
}

func (l *RedisEventLog) MarkProcessed(ctx context.Context, id string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+id, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, errors.Join(ErrFailedToRecordEvent, err)
	}
	return ok, nil
}

func (l *RedisEventLog) Seen(ctx context.Context, id string) (bool, error) {
	n, err := l.client.Exists(ctx, l.prefix+id).Result()
	if err != nil {
		return false, errors.Join(ErrFailedToRecordEvent, err)
	}
	return n > 0, nil
}
