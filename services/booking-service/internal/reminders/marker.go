package reminders

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Marker remembers which reminders were already emitted. Mark reports true the
// first time a key is seen within ttl; Unmark releases a key whose reminder
// could not be handed off.
type Marker interface {
	Mark(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unmark(ctx context.Context, key string) error
}

type MemoryMarker struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{seen: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryMarker) Mark(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.seen {
		if !exp.After(now) {
			delete(m.seen, k)
		}
	}
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryMarker) Unmark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	return nil
}

// RedisMarker shares marks across booking-service replicas with SET NX.
type RedisMarker struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisMarker(rdb redis.Cmdable, prefix string) *RedisMarker {
	if prefix == "" {
		prefix = "barberbook:reminder"
	}
	return &RedisMarker{rdb: rdb, prefix: prefix}
}

func (m *RedisMarker) Mark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return m.rdb.SetNX(ctx, m.prefix+":"+key, 1, ttl).Result()
}

func (m *RedisMarker) Unmark(ctx context.Context, key string) error {
	return m.rdb.Del(ctx, m.prefix+":"+key).Err()
}
