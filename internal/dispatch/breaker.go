package dispatch

import (
	"sync"
	"time"

	"github.com/aigateway/gateway/internal/providers"
)

// cbState is the operational state of a per-provider circuit breaker.
//
//	cbClosed   — normal operation; all requests pass through.
//	cbOpen     — provider is failing; requests are rejected immediately.
//	cbHalfOpen — recovery probe; one request is allowed to test the provider.
type cbState int

const (
	cbClosed cbState = iota
	cbOpen
	cbHalfOpen
)

// BreakerConfig holds the circuit breaker's tuning parameters, sourced from
// config.Config's CircuitBreaker* fields rather than package constants. The
// values are copied when the breaker is built; changing them needs a restart.
type BreakerConfig struct {
	ErrorThreshold  int
	TimeWindow      time.Duration
	HalfOpenTimeout time.Duration
}

type providerCB struct {
	mu sync.Mutex

	state         cbState
	errorCount    int
	windowStart   time.Time
	openedAt      time.Time
	probeInflight bool
}

// CircuitBreaker manages one breaker per provider slot. Safe for concurrent
// use; each provider's state is guarded by its own mutex so a burst of
// failures against one vendor never blocks Allow/RecordSuccess calls for
// another.
type CircuitBreaker struct {
	mu       sync.RWMutex
	breakers map[string]*providerCB
	cfg      BreakerConfig
}

// NewCircuitBreaker pre-populates a breaker for every name in
// providers.Names using cfg's thresholds.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{breakers: make(map[string]*providerCB, len(providers.Names)), cfg: cfg}
	for _, name := range providers.Names {
		cb.breakers[name] = &providerCB{state: cbClosed, windowStart: time.Now()}
	}
	return cb
}

// Allow reports whether provider should receive the next request.
func (cb *CircuitBreaker) Allow(provider string) bool {
	pcb := cb.get(provider)
	if pcb == nil {
		return true
	}

	pcb.mu.Lock()
	defer pcb.mu.Unlock()

	switch pcb.state {
	case cbClosed:
		return true
	case cbOpen:
		if time.Since(pcb.openedAt) >= cb.cfg.HalfOpenTimeout {
			pcb.state = cbHalfOpen
			pcb.probeInflight = true
			return true
		}
		return false
	case cbHalfOpen:
		if pcb.probeInflight {
			return false
		}
		pcb.probeInflight = true
		return true
	}
	return true
}

// RecordSuccess resets provider's breaker to closed.
func (cb *CircuitBreaker) RecordSuccess(provider string) {
	pcb := cb.get(provider)
	if pcb == nil {
		return
	}
	pcb.mu.Lock()
	defer pcb.mu.Unlock()
	pcb.state = cbClosed
	pcb.errorCount = 0
	pcb.probeInflight = false
	pcb.windowStart = time.Now()
}

// RecordFailure increments provider's rolling error count, tripping the
// breaker open once it reaches ErrorThreshold within TimeWindow.
func (cb *CircuitBreaker) RecordFailure(provider string) {
	pcb := cb.get(provider)
	if pcb == nil {
		return
	}
	pcb.mu.Lock()
	defer pcb.mu.Unlock()

	now := time.Now()
	if now.Sub(pcb.windowStart) > cb.cfg.TimeWindow {
		pcb.errorCount = 0
		pcb.windowStart = now
	}
	pcb.errorCount++
	pcb.probeInflight = false

	if pcb.errorCount >= cb.cfg.ErrorThreshold {
		pcb.state = cbOpen
		pcb.openedAt = now
	}
}

// State returns the current state for provider, "closed" for names the
// breaker isn't tracking.
func (cb *CircuitBreaker) State(provider string) cbState {
	pcb := cb.get(provider)
	if pcb == nil {
		return cbClosed
	}
	pcb.mu.Lock()
	defer pcb.mu.Unlock()
	return pcb.state
}

// StateLabel renders State as a human-readable string for logs/metrics.
func (cb *CircuitBreaker) StateLabel(provider string) string {
	switch cb.State(provider) {
	case cbOpen:
		return "open"
	case cbHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

func (cb *CircuitBreaker) get(provider string) *providerCB {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.breakers[provider]
}
