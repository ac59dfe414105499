// Package analytics tracks in-process counters describing gateway activity:
// request outcomes, per-provider token usage, and a bounded ring of recent
// errors. Every method is safe for concurrent use.
package analytics

import (
	"sync"
	"time"
)

// RecentError is one entry in the bounded error ring.
type RecentError struct {
	Timestamp int64
	Provider  string
	Kind      string
	Message   string
	RequestID string
}

// Snapshot is a point-in-time, lock-free copy of all counters — safe to
// marshal directly for the admin /stats endpoint.
type Snapshot struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	CacheHits          int64
	CacheMisses        int64

	RequestsByProvider     map[string]int64
	ErrorsByProvider       map[string]int64
	InputTokensByProvider  map[string]int64
	OutputTokensByProvider map[string]int64

	TotalErrors  int64
	ErrorsByType map[string]int64
	RecentErrors []RecentError
}

const recentErrorsCap = 10

// Counters is the gateway's in-process analytics store. One mutex per
// logical group (requests, tokens, errors) so a burst of error recording
// never blocks a concurrent request-count increment.
type Counters struct {
	reqMu              sync.Mutex
	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	cacheHits          int64
	cacheMisses        int64
	requestsByProvider map[string]int64

	tokMu                  sync.Mutex
	inputTokensByProvider  map[string]int64
	outputTokensByProvider map[string]int64

	errMu         sync.Mutex
	totalErrors   int64
	errorsByType  map[string]int64
	errorsByProv  map[string]int64
	recentErrors  []RecentError
}

// New returns an empty Counters, ready to use.
func New() *Counters {
	return &Counters{
		requestsByProvider:     make(map[string]int64),
		inputTokensByProvider:  make(map[string]int64),
		outputTokensByProvider: make(map[string]int64),
		errorsByType:           make(map[string]int64),
		errorsByProv:           make(map[string]int64),
	}
}

// RecordSuccess increments totalRequests, successfulRequests, and the
// serving provider's request count. Call exactly once per client call on
// the success path.
func (c *Counters) RecordSuccess(provider string) {
	c.reqMu.Lock()
	c.totalRequests++
	c.successfulRequests++
	c.requestsByProvider[provider]++
	c.reqMu.Unlock()
}

// RecordFailure increments totalRequests, failedRequests, and the
// last-attempted provider's request count. Call exactly once per client
// call on the failure path. provider may be empty when the request never
// reached a provider (e.g. validation or rate-limit failures).
func (c *Counters) RecordFailure(provider string) {
	c.reqMu.Lock()
	c.totalRequests++
	c.failedRequests++
	if provider != "" {
		c.requestsByProvider[provider]++
	}
	c.reqMu.Unlock()
}

// RecordCacheHit/RecordCacheMiss track the cache interceptor's outcome.
func (c *Counters) RecordCacheHit() {
	c.reqMu.Lock()
	c.cacheHits++
	c.reqMu.Unlock()
}

func (c *Counters) RecordCacheMiss() {
	c.reqMu.Lock()
	c.cacheMisses++
	c.reqMu.Unlock()
}

// RecordTokens updates per-provider token counters. Only called on success.
func (c *Counters) RecordTokens(provider string, inputTokens, outputTokens int) {
	c.tokMu.Lock()
	c.inputTokensByProvider[provider] += int64(inputTokens)
	c.outputTokensByProvider[provider] += int64(outputTokens)
	c.tokMu.Unlock()
}

// RecordError increments the error counters and pushes a new entry onto the
// bounded recentErrors ring, dropping the oldest entry past 10. requestID is
// the dispatch-level request id in effect when the error occurred, threaded
// through so operators can correlate a recent error with the request logs.
func (c *Counters) RecordError(provider, kind, message, requestID string) {
	c.errMu.Lock()
	c.totalErrors++
	c.errorsByType[kind]++
	if provider != "" {
		c.errorsByProv[provider]++
	}

	c.recentErrors = append(c.recentErrors, RecentError{
		Timestamp: time.Now().Unix(),
		Provider:  provider,
		Kind:      kind,
		Message:   message,
		RequestID: requestID,
	})
	if len(c.recentErrors) > recentErrorsCap {
		c.recentErrors = c.recentErrors[len(c.recentErrors)-recentErrorsCap:]
	}
	c.errMu.Unlock()
}

// Snapshot clones every counter under its owning lock and returns an
// independent copy safe to marshal or inspect without further locking.
func (c *Counters) Snapshot() Snapshot {
	c.reqMu.Lock()
	s := Snapshot{
		TotalRequests:      c.totalRequests,
		SuccessfulRequests: c.successfulRequests,
		FailedRequests:     c.failedRequests,
		CacheHits:          c.cacheHits,
		CacheMisses:        c.cacheMisses,
		RequestsByProvider: cloneMap(c.requestsByProvider),
	}
	c.reqMu.Unlock()

	c.tokMu.Lock()
	s.InputTokensByProvider = cloneMap(c.inputTokensByProvider)
	s.OutputTokensByProvider = cloneMap(c.outputTokensByProvider)
	c.tokMu.Unlock()

	c.errMu.Lock()
	s.TotalErrors = c.totalErrors
	s.ErrorsByType = cloneMap(c.errorsByType)
	s.ErrorsByProvider = cloneMap(c.errorsByProv)
	s.RecentErrors = append([]RecentError(nil), c.recentErrors...)
	c.errMu.Unlock()

	return s
}

func cloneMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
