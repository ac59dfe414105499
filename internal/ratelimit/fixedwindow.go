// Package ratelimit implements the gateway's fixed-window, per-client-IP
// rate limiter with client/wildcard/default plan precedence.
package ratelimit

import (
	"sync"
	"time"

	"github.com/aigateway/gateway/internal/config"
)

// Result is the outcome of a single check() call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetSecs  int
	PlanType   string // "client", "wildcard", "default", or "" when unlimited
}

// state is the per-IP window bookkeeping record.
type state struct {
	requests    int
	windowStart int64
}

// Checker is the interface internal/ingress depends on, satisfied by both
// the in-memory Limiter and (via a thin context-injecting adapter in
// internal/app) the Redis-backed RedisLimiter — so the HTTP ingress stays
// agnostic to which backend RATE_LIMIT_BACKEND selects.
type Checker interface {
	Check(clientIP string) Result
}

// Planner resolves the applicable plan for an IP with client > wildcard >
// default precedence. Implemented by *config.Store.
type Planner interface {
	ClientPlan(ip string) (config.RateLimitPlan, bool)
	WildcardPlan() config.RateLimitPlan
	DefaultPlan() config.RateLimitPlan
	HasClientPlan(ip string) bool
}

// Limiter is the in-process fixed-window limiter. A single mutex covers
// both the plan lookup and the read-modify-write of the per-IP state map —
// the map is small and hot, and the critical section never performs I/O, so
// a global lock is the right tradeoff over per-key locking.
type Limiter struct {
	mu     sync.Mutex
	plans  Planner
	states map[string]*state
	now    func() int64
}

// New builds a Limiter reading plans from the given Planner (normally the
// process's *config.Store).
func New(plans Planner) *Limiter {
	return &Limiter{
		plans:  plans,
		states: make(map[string]*state),
		now:    func() int64 { return time.Now().Unix() },
	}
}

// Check evaluates the rate limit for clientIP, per spec.md §4.4. An empty
// IP is always a pass-through — used by internal/trusted callers.
func (l *Limiter) Check(clientIP string) Result {
	if clientIP == "" {
		return Result{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	plan, planType, ok := l.resolvePlan(clientIP)
	if !ok {
		return Result{Allowed: true}
	}

	st, exists := l.states[clientIP]
	now := l.now()
	if !exists {
		st = &state{requests: 0, windowStart: now}
		l.states[clientIP] = st
	}

	if now-st.windowStart >= int64(plan.WindowSeconds) {
		st.requests = 0
		st.windowStart = now
	}

	remaining := plan.RequestsPerWindow - st.requests
	reset := plan.WindowSeconds - int(now-st.windowStart)

	if st.requests >= plan.RequestsPerWindow {
		return Result{Allowed: false, Limit: plan.RequestsPerWindow, Remaining: 0, ResetSecs: reset, PlanType: planType}
	}

	st.requests++
	return Result{
		Allowed:   true,
		Limit:     plan.RequestsPerWindow,
		Remaining: remaining - 1,
		ResetSecs: reset,
		PlanType:  planType,
	}
}

func (l *Limiter) resolvePlan(ip string) (config.RateLimitPlan, string, bool) {
	if p, ok := l.plans.ClientPlan(ip); ok {
		return p, "client", true
	}
	if p := l.plans.WildcardPlan(); p.RequestsPerWindow > 0 {
		return p, "wildcard", true
	}
	if p := l.plans.DefaultPlan(); p.RequestsPerWindow > 0 {
		return p, "default", true
	}
	return config.RateLimitPlan{}, "", false
}

// ResetDefaultPlanIPs clears window state for every IP that is not pinned
// to a client-specific plan. Called after an admin replaces the default
// plan, per spec.md §3 Lifecycles: "RateLimitState ... reset at window
// rollover or when a plan changes (only for IPs using the default plan)".
func (l *Limiter) ResetDefaultPlanIPs() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip := range l.states {
		if l.plans.HasClientPlan(ip) {
			continue
		}
		delete(l.states, ip)
	}
}
