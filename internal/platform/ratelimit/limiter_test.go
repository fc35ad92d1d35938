package ratelimit

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestClient 连接 REDIS_ADDR，连不上时跳过
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			db = n
		}
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD"), DB: db})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skip: redis not available at %s: %v", addr, err)
	}
	return client
}

func TestLimiterSlidingWindow(t *testing.T) {
	client := newTestClient(t)
	limiter := NewLimiter(client)

	key := fmt.Sprintf("test:rl:%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = client.Del(context.Background(), key).Err() })

	window := 2 * time.Second
	limit := 3
	allow := func() (bool, time.Duration) {
		ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
		defer cancel()
		ok, retry, err := limiter.Allow(ctx, key, limit, window)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		return ok, retry
	}

	for i := 0; i < limit; i++ {
		if ok, _ := allow(); !ok {
			t.Fatalf("expected allowed at attempt %d", i+1)
		}
	}
	ok, retryAfter := allow()
	if ok {
		t.Fatalf("expected denied at attempt %d", limit+1)
	}
	if retryAfter <= 0 || retryAfter > window {
		t.Fatalf("unexpected retryAfter: %v (window=%v)", retryAfter, window)
	}

	time.Sleep(window + 200*time.Millisecond)
	if ok, _ := allow(); !ok {
		t.Fatal("expected allowed after window slides")
	}
}
