package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aigateway/gateway/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter is an optional multi-process rate-limiter backend, activated
// via RATE_LIMIT_BACKEND=redis. It preserves the same fixed-window
// semantics as the default in-memory Limiter (bucketed by window-start, not
// a sliding log) so that switching backends does not change observable
// behavior — only whether state is shared across gateway replicas.
//
// It is not the default backend: spec.md's Non-goals exclude "multi-node
// coordination" from the core, so RedisLimiter exists purely as an optional
// deployment knob for operators who run more than one gateway process.
type RedisLimiter struct {
	rdb   *redis.Client
	plans Planner
}

// NewRedisLimiter builds a Redis-backed limiter over an existing client.
func NewRedisLimiter(rdb *redis.Client, plans Planner) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, plans: plans}
}

// Check mirrors Limiter.Check's contract using Redis INCR/EXPIRE on a
// window-bucketed key, so that concurrent gateway processes share counters.
func (r *RedisLimiter) Check(ctx context.Context, clientIP string) (Result, error) {
	if clientIP == "" {
		return Result{Allowed: true}, nil
	}

	plan, planType, ok := r.resolvePlan(clientIP)
	if !ok {
		return Result{Allowed: true}, nil
	}

	bucketKey := fmt.Sprintf("ratelimit:{%s}:%s", clientIP, planType)

	count, err := r.rdb.Incr(ctx, bucketKey).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	if count == 1 {
		if err := r.rdb.Expire(ctx, bucketKey, secondsToDuration(plan.WindowSeconds)).Err(); err != nil {
			return Result{}, fmt.Errorf("ratelimit: redis expire: %w", err)
		}
	}

	ttl, err := r.rdb.TTL(ctx, bucketKey).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis ttl: %w", err)
	}
	resetSecs := int(ttl.Seconds())
	if resetSecs < 0 {
		resetSecs = plan.WindowSeconds
	}

	if int(count) > plan.RequestsPerWindow {
		return Result{Allowed: false, Limit: plan.RequestsPerWindow, Remaining: 0, ResetSecs: resetSecs, PlanType: planType}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     plan.RequestsPerWindow,
		Remaining: plan.RequestsPerWindow - int(count),
		ResetSecs: resetSecs,
		PlanType:  planType,
	}, nil
}

func (r *RedisLimiter) resolvePlan(ip string) (plan config.RateLimitPlan, planType string, ok bool) {
	if p, found := r.plans.ClientPlan(ip); found {
		return p, "client", true
	}
	if p := r.plans.WildcardPlan(); p.RequestsPerWindow > 0 {
		return p, "wildcard", true
	}
	if p := r.plans.DefaultPlan(); p.RequestsPerWindow > 0 {
		return p, "default", true
	}
	return config.RateLimitPlan{}, "", false
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
