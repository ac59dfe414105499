package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aigateway/gateway/internal/config"
	"github.com/redis/go-redis/v9"
)

func newTestRedisLimiter(t *testing.T, plans Planner) *RedisLimiter {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisLimiter(rdb, plans)
}

func TestRedisLimiter_Check(t *testing.T) {
	planner := &fakePlanner{deflt: config.RateLimitPlan{RequestsPerWindow: 2, WindowSeconds: 60}}
	l := newTestRedisLimiter(t, planner)
	ctx := context.Background()

	r1, err := l.Check(ctx, "3.3.3.3")
	if err != nil || !r1.Allowed {
		t.Fatalf("expected first call allowed, got %+v err=%v", r1, err)
	}
	r2, err := l.Check(ctx, "3.3.3.3")
	if err != nil || !r2.Allowed {
		t.Fatalf("expected second call allowed, got %+v err=%v", r2, err)
	}
	r3, err := l.Check(ctx, "3.3.3.3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r3.Allowed {
		t.Fatalf("expected third call denied at N=2, got %+v", r3)
	}
}
