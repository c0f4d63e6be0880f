package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestLimiter connects to a local Redis instance. Tests are skipped if
// Redis is not available.
func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return NewLimiter(client)
}

func TestAllowWithinLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	user := fmt.Sprintf("user-%d", time.Now().UnixNano())
	rule := Rule{Key: "rl:test:", Limit: 3, Window: 10 * time.Second}

	for i := 0; i < rule.Limit; i++ {
		allowed, err := limiter.Allow(ctx, user, rule)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, user, rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("request over the limit should be blocked")
	}
}

func TestRemaining(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	user := fmt.Sprintf("user-%d", time.Now().UnixNano())
	rule := Rule{Key: "rl:test:", Limit: 5, Window: 10 * time.Second}

	remaining, err := limiter.Remaining(ctx, user, rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remaining != rule.Limit {
		t.Errorf("fresh identifier should have full limit, got %d", remaining)
	}

	limiter.Allow(ctx, user, rule)
	limiter.Allow(ctx, user, rule)

	remaining, err = limiter.Remaining(ctx, user, rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remaining != rule.Limit-2 {
		t.Errorf("expected %d remaining, got %d", rule.Limit-2, remaining)
	}
}

func TestWindowExpiry(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	user := fmt.Sprintf("user-%d", time.Now().UnixNano())
	rule := Rule{Key: "rl:test:", Limit: 1, Window: time.Second}

	if allowed, _ := limiter.Allow(ctx, user, rule); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _ := limiter.Allow(ctx, user, rule); allowed {
		t.Fatal("second request inside the window should be blocked")
	}

	time.Sleep(rule.Window + 100*time.Millisecond)

	if allowed, _ := limiter.Allow(ctx, user, rule); !allowed {
		t.Error("request after window expiry should be allowed")
	}
}
