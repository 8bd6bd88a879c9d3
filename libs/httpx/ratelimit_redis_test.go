package httpx

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisRateLimiter(t *testing.T) {
	addr := os.Getenv("BARBERBOOK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BARBERBOOK_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	prefix := "rl-test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	rl := NewRedisRateLimiter(rdb, 2, time.Minute, prefix, nil)
	rl.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 15, 0, time.UTC) }
	h := rl.Middleware(discardLogger(), false)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/chat", nil))
		codes = append(codes, rw.Code)
		if i == 2 && rw.Header().Get("Retry-After") != "46" {
			t.Fatalf("Retry-After=%q, want 46", rw.Header().Get("Retry-After"))
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	rl.now = func() time.Time { return time.Date(2026, 3, 2, 10, 1, 0, 0, time.UTC) }
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/chat", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("next window should pass, got %d", rw.Code)
	}
}

func TestRedisRateLimiterUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	rl := NewRedisRateLimiter(rdb, 1, time.Minute, "", nil)

	for _, tc := range []struct {
		failOpen bool
		want     int
	}{
		{true, http.StatusOK},
		{false, http.StatusServiceUnavailable},
	} {
		rw := httptest.NewRecorder()
		rl.Middleware(discardLogger(), tc.failOpen)(okHandler()).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
		if rw.Code != tc.want {
			t.Fatalf("failOpen=%v: got %d, want %d", tc.failOpen, rw.Code, tc.want)
		}
	}
}
