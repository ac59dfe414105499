// Package dispatch implements the gateway's provider-routing core: request
// validation, primary/failover selection across the configured vendor
// slots, system-prompt combination, guardrails enforcement on the served
// response, and the analytics update that follows every call.
//
// Rate limiting and response caching are not this package's concern — they
// are HTTP-only interceptors composed by internal/ingress ahead of and
// around a Dispatch call (the gRPC surface has neither). Dispatcher is the
// "main handler" step of that chain: it is reached only after a cache miss
// (or for gRPC, on every call) and is solely responsible for getting a
// CanonicalResponse out of some configured vendor.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aigateway/gateway/internal/analytics"
	"github.com/aigateway/gateway/internal/config"
	"github.com/aigateway/gateway/internal/guardrails"
	"github.com/aigateway/gateway/internal/logger"
	"github.com/aigateway/gateway/internal/providers"
)

// DefaultTemperature and DefaultMaxTokens are applied whenever a request
// omits them (zero value). internal/ingress uses the same constants to
// precompute a cache fingerprint that matches what Dispatch will actually
// send to the vendor.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// ErrNoUserMessage is returned when a request does not contain exactly one
// user message with non-empty content.
var ErrNoUserMessage = errors.New("dispatch: request must contain exactly one user message with non-empty content")

// ErrMultipleSystemMessages is returned when a request carries more than one
// system message.
var ErrMultipleSystemMessages = errors.New("dispatch: request must contain at most one system message")

// AllProvidersFailedError is returned when every configured provider (primary
// plus every failover candidate) returned an error. It wraps the last
// error encountered and flags that failover was exhausted, per spec.
type AllProvidersFailedError struct {
	Primary  string
	Attempts []string
	Err      error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("dispatch: all providers attempted (%v) failed: %v", e.Attempts, e.Err)
}

func (e *AllProvidersFailedError) Unwrap() error { return e.Err }

// Request is the ingress-agnostic input to Dispatch: already parsed out of
// the HTTP JSON body or the gRPC message, with the target provider already
// resolved from the x-llm-provider header / llm_provider field.
type Request struct {
	Provider    string
	Messages    []providers.Message
	Temperature float64
	MaxTokens   int

	// RequestID, when empty, is generated as a UUIDv7 so callers never need
	// their own ID scheme; set explicitly only by tests.
	RequestID string
}

// Result is what a successful Dispatch call hands back to its ingress
// caller, plus the bookkeeping ingress needs to build a cache key and
// response headers.
type Result struct {
	Response          *providers.CanonicalResponse
	ServedBy          string
	FailoverAttempted bool
	RequestID         string
}

// Dispatcher owns the six provider adapters and routes a canonical request
// to one of them, with automatic failover and a breaker per vendor slot.
type Dispatcher struct {
	store     *config.Store
	providers map[string]providers.Provider
	breaker   *CircuitBreaker
	analytics *analytics.Counters
	log       *logger.Logger
}

// New builds a Dispatcher over the given live adapters (keyed by
// providers.Names entries — unconfigured slots may simply be absent from
// the map).
func New(store *config.Store, provs map[string]providers.Provider, breaker *CircuitBreaker, an *analytics.Counters, log *logger.Logger) *Dispatcher {
	return &Dispatcher{store: store, providers: provs, breaker: breaker, analytics: an, log: log}
}

// Dispatch validates req, resolves its system prompt, and attempts the
// primary provider followed by failover candidates until one succeeds or
// every configured provider has been tried.
//
// Per spec: if the primary provider isn't configured, this returns
// providers.ErrNotConfigured immediately — no failover is attempted for a
// request the client never actually routed anywhere live. Failover only
// engages once the primary (or a later candidate) returns an error from a
// genuine vendor call.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	requestID := req.RequestID
	if requestID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("dispatch: generate request id: %w", err)
		}
		requestID = id.String()
	}

	requestSystem, userMessages, err := splitMessages(req.Messages)
	if err != nil {
		d.analytics.RecordFailure("")
		d.analytics.RecordError("", "BadRequest", err.Error(), requestID)
		return nil, err
	}

	provCfg, known := d.store.Provider(req.Provider)
	if !known || !provCfg.Configured() {
		d.log.Warn("dispatch", "provider not configured", map[string]any{
			"requestId": requestID,
			"provider":  req.Provider,
		})
		d.analytics.RecordFailure("")
		d.analytics.RecordError("", "ProviderNotConfigured", "provider not configured: "+req.Provider, requestID)
		return nil, &providers.ErrNotConfigured{Provider: req.Provider}
	}

	systemPrompt := combineSystemPrompts(requestSystem, d.store.SystemPrompt())
	canonReq := &providers.CanonicalRequest{
		Messages:    userMessages,
		Temperature: orDefaultFloat(req.Temperature, DefaultTemperature),
		MaxTokens:   orDefaultInt(req.MaxTokens, DefaultMaxTokens),
	}

	candidates := buildCandidateList(req.Provider, d.store.ConfiguredProviders())

	var lastErr error
	var attempted []string
	guardCfg := d.store.Guardrails()

	for _, name := range candidates {
		adapter, ok := d.providers[name]
		if !ok {
			continue
		}
		if d.breaker != nil && !d.breaker.Allow(name) {
			d.log.Warn("dispatch", "circuit breaker open", map[string]any{"requestId": requestID, "provider": name})
			continue
		}

		attempted = append(attempted, name)
		if name != req.Provider {
			d.log.Info("dispatch", "failover attempting", map[string]any{
				"requestId": requestID, "from": req.Provider, "to": name,
			})
		}

		start := time.Now()
		resp, callErr := adapter.Request(ctx, systemPrompt, canonReq)
		latency := time.Since(start)

		if callErr != nil {
			if d.breaker != nil {
				d.breaker.RecordFailure(name)
			}
			kind := classifyError(callErr)
			// One attempt-level error entry per failed provider call — on
			// top of this, a single terminal "all-providers" entry is
			// recorded below if every candidate fails. The request-level
			// failedRequests counter is still only incremented once, after
			// the loop, per the dispatcher's single-failure-per-call
			// contract.
			d.analytics.RecordError(name, kind, callErr.Error(), requestID)
			d.log.Warn("dispatch", "provider attempt failed", map[string]any{
				"requestId": requestID,
				"provider":  name,
				"reason":    kind,
				"latencyMs": latency.Milliseconds(),
			})
			lastErr = callErr
			continue
		}

		if d.breaker != nil {
			d.breaker.RecordSuccess(name)
		}

		// Only checked here for outright rejection (too short / banned
		// phrase) — the transformed text is discarded rather than written
		// back onto resp. resp keeps the vendor's raw content so that
		// whatever caches it (internal/ingress) stores the pre-guardrail
		// response; guardrails are applied exactly once, at serve time,
		// whether the response is fresh or served from cache. Re-running
		// Check against an already-transformed response would append a
		// second disclaimer on every cache hit.
		if _, gErr := guardrails.Check(guardCfg, lastAssistantContent(resp)); gErr != nil {
			// Guardrail failures are never retried across providers: the
			// vendor answered successfully, but its content violates policy.
			d.analytics.RecordFailure(name)
			d.analytics.RecordError(name, "GuardrailsCheckFailed", gErr.Error(), requestID)
			d.log.Warn("dispatch", "guardrails rejected response", map[string]any{
				"requestId": requestID, "provider": name, "error": gErr.Error(),
			})
			return nil, &providers.GuardrailError{Err: gErr}
		}

		if name != req.Provider {
			d.log.Info("dispatch", "failover successful", map[string]any{
				"requestId": requestID, "from": req.Provider, "to": name,
			})
		}

		d.analytics.RecordSuccess(name)
		d.analytics.RecordTokens(name, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

		return &Result{
			Response:          resp,
			ServedBy:          name,
			FailoverAttempted: name != req.Provider,
			RequestID:         requestID,
		}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("dispatch: no configured provider could be reached")
	}
	servedBy := ""
	if len(attempted) > 0 {
		servedBy = attempted[len(attempted)-1]
	}
	d.analytics.RecordFailure(servedBy)
	// One terminal entry, tagged "all-providers" per spec.md §7/§9, separate
	// from the per-attempt entries already recorded above for each failed
	// candidate — the two together are the documented error-count contract,
	// not double-counting.
	d.analytics.RecordError(servedBy, "all-providers", lastErr.Error(), requestID)

	return nil, &AllProvidersFailedError{Primary: req.Provider, Attempts: attempted, Err: lastErr}
}

// splitMessages enforces the at-most-one-system / exactly-one-non-empty-user
// invariant and returns the request's own system message content (possibly
// empty) separately from the rest of the conversation.
func splitMessages(msgs []providers.Message) (requestSystem string, rest []providers.Message, err error) {
	sawSystem := false
	userCount := 0

	for _, m := range msgs {
		switch m.Role {
		case "system":
			if sawSystem {
				return "", nil, ErrMultipleSystemMessages
			}
			sawSystem = true
			requestSystem = m.Content
			continue
		case "user":
			if m.Content != "" {
				userCount++
			}
		}
		rest = append(rest, m)
	}

	if userCount != 1 {
		return "", nil, ErrNoUserMessage
	}
	return requestSystem, rest, nil
}

// combineSystemPrompts joins the request's own system message with the
// gateway's stored system prompt, request-supplied text first: e.g. request
// "Be polite." + stored "Respond tersely." => "Be polite. Respond tersely."
func combineSystemPrompts(requestSystem, stored string) string {
	switch {
	case requestSystem == "":
		return stored
	case stored == "":
		return requestSystem
	default:
		return requestSystem + " " + stored
	}
}

func lastAssistantContent(resp *providers.CanonicalResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

func orDefaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
