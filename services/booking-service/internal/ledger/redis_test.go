package ledger

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestRedisContract(t *testing.T) {
	addr := os.Getenv("BARBERBOOK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BARBERBOOK_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	runContract(t, func(t *testing.T) Ledger {
		prefix := "barberbook:test:" + uuid.NewString()
		t.Cleanup(func() {
			ctx := context.Background()
			iter := rdb.Scan(ctx, 0, prefix+":*", 100).Iterator()
			for iter.Next(ctx) {
				_ = rdb.Del(ctx, iter.Val()).Err()
			}
		})
		return NewRedis(rdb, prefix)
	})
}

func TestRedisUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedis(rdb, "")
	if _, err := l.FindConflicts(context.Background(), slot(10, 0)); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := l.Insert(context.Background(), newAppt("+15550000001", slot(10, 0))); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on insert, got %v", err)
	}
}
