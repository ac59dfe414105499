// Package ingress hosts every external-facing surface of the gateway: the
// public HTTP API (this file and passthrough.go), the admin HTTP API
// (admin.go), and the gRPC service (grpc.go). It owns the two interceptors
// the HTTP chat-completions path has that the gRPC surface does not — rate
// limiting and response caching — composed around a shared
// internal/dispatch.Dispatcher call.
package ingress

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/aigateway/gateway/internal/analytics"
	"github.com/aigateway/gateway/internal/cache"
	"github.com/aigateway/gateway/internal/config"
	"github.com/aigateway/gateway/internal/dispatch"
	"github.com/aigateway/gateway/internal/guardrails"
	"github.com/aigateway/gateway/internal/logger"
	"github.com/aigateway/gateway/internal/providers"
	"github.com/aigateway/gateway/internal/ratelimit"
	"github.com/aigateway/gateway/pkg/apierr"
)

// Version is reported in the Server header of every success response.
const Version = "0.1.0"

// HTTPServer is the public-facing HTTP surface.
type HTTPServer struct {
	store      *config.Store
	dispatcher *dispatch.Dispatcher
	limiter    ratelimit.Checker
	cache      cache.Cache
	exclusions *cache.ExclusionList
	analytics  *analytics.Counters
	log        *logger.Logger
	health     *HealthChecker
}

// SetHealthChecker attaches a HealthChecker, enabling GET /health and
// GET /readiness. Safe to skip in tests that don't need it.
func (h *HTTPServer) SetHealthChecker(hc *HealthChecker) {
	h.health = hc
}

// NewHTTPServer wires the public HTTP surface over already-constructed
// singletons. limiter and c may be nil to disable rate limiting or caching
// entirely; a nil excl excludes no model from caching.
func NewHTTPServer(store *config.Store, d *dispatch.Dispatcher, limiter ratelimit.Checker, c cache.Cache, excl *cache.ExclusionList, an *analytics.Counters, log *logger.Logger) *HTTPServer {
	return &HTTPServer{store: store, dispatcher: d, limiter: limiter, cache: c, exclusions: excl, analytics: an, log: log}
}

// Handler builds the fully wrapped fasthttp handler: the middleware chain
// around a router carrying the chat-completions route and the generic
// passthrough route.
func (h *HTTPServer) Handler() fasthttp.RequestHandler {
	r := router.New()
	r.POST("/v1/chat/completions", h.handleChatCompletions)
	r.GET("/health", h.handleHealth)
	r.GET("/readiness", h.handleReadiness)
	r.ANY("/{service}/{path:*}", h.handlePassthrough)

	cfg := h.store.Snapshot()
	return applyMiddleware(r.Handler,
		recovery,
		requestID,
		serverHeader(Version),
		timing,
		corsHandler(cfg.CORSOrigins),
		securityHeaders,
	)
}

type inboundMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type inboundRequest struct {
	Messages    []inboundMessage `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
}

type outboundChoice struct {
	Index        int            `json:"index"`
	Message      inboundMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type outboundUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type outboundResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Created int64            `json:"created"`
	Model   string           `json:"model"`
	Choices []outboundChoice `json:"choices"`
	Usage   outboundUsage    `json:"usage"`
}

func toOutbound(resp *providers.CanonicalResponse) outboundResponse {
	choices := make([]outboundChoice, len(resp.Choices))
	for i, c := range resp.Choices {
		choices[i] = outboundChoice{
			Index:        c.Index,
			Message:      inboundMessage{Role: c.Message.Role, Content: c.Message.Content},
			FinishReason: c.FinishReason,
		}
	}
	return outboundResponse{
		ID:      resp.ID,
		Object:  resp.Object,
		Created: resp.Created,
		Model:   resp.Model,
		Choices: choices,
		Usage: outboundUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
		},
	}
}

func writeCanonical(ctx *fasthttp.RequestCtx, resp *providers.CanonicalResponse) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(toOutbound(resp))
	ctx.SetBody(body)
}

// handleChatCompletions implements POST /v1/chat/completions: rate-limit
// check, then cache lookup, then (on miss) dispatch, then cache insert —
// the chain spec.md §4.9/§9 describe for the HTTP ingress.
func (h *HTTPServer) handleChatCompletions(ctx *fasthttp.RequestCtx) {
	requestID, _ := ctx.UserValue("request_id").(string)
	ip := clientIP(ctx)

	provider := string(ctx.Request.Header.Peek("x-llm-provider"))
	if !validProviderName(provider) {
		apierr.WriteFlat(ctx, fasthttp.StatusBadRequest,
			"x-llm-provider header must be one of: "+strings.Join(providers.Names, ", "))
		return
	}

	var body inboundRequest
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.WriteFlat(ctx, fasthttp.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if h.limiter != nil {
		res := h.limiter.Check(ip)
		if res.PlanType != "" {
			apierr.SetRateLimitHeaders(ctx, res.Limit, res.Remaining, res.ResetSecs)
		}
		if !res.Allowed {
			h.log.Warn("ingress", "rate limit exceeded", map[string]any{
				"requestId": requestID, "clientIp": ip, "planType": res.PlanType,
			})
			h.analytics.RecordFailure("")
			apierr.WriteRateLimitExceeded(ctx, res.Limit, res.Remaining, res.ResetSecs, res.PlanType)
			return
		}
	}

	msgs := make([]providers.Message, len(body.Messages))
	for i, m := range body.Messages {
		msgs[i] = providers.Message{Role: m.Role, Content: m.Content}
	}

	bypass := strings.EqualFold(string(ctx.Request.Header.Peek("Cache-Control")), "no-cache")
	cacheEligible := !bypass && h.cache != nil && (h.exclusions == nil || !h.exclusions.Matches(provider))

	var fingerprint string
	if cacheEligible {
		canon := providers.CanonicalRequest{
			Messages:    msgs,
			Temperature: orDefaultFloat(body.Temperature, dispatch.DefaultTemperature),
			MaxTokens:   orDefaultInt(body.MaxTokens, dispatch.DefaultMaxTokens),
		}
		fp, err := cache.Fingerprint(provider, canon)
		if err != nil {
			apierr.WriteFlat(ctx, fasthttp.StatusInternalServerError, "failed to compute cache key")
			return
		}
		fingerprint = fp

		if entry, ok := h.cache.Lookup(fingerprint); ok {
			h.serveCacheHit(ctx, provider, entry, requestID)
			return
		}
		h.analytics.RecordCacheMiss()
	}

	result, err := h.dispatcher.Dispatch(ctx, dispatch.Request{
		Provider:    provider,
		Messages:    msgs,
		Temperature: body.Temperature,
		MaxTokens:   body.MaxTokens,
		RequestID:   requestID,
	})
	if err != nil {
		writeDispatchError(ctx, err)
		return
	}

	if cacheEligible {
		h.cache.Insert(fingerprint, *result.Response)
	}

	h.serveFresh(ctx, result.Response)
}

// serveFresh applies guardrails once to a freshly dispatched response
// before writing it to the client. dispatch.go validates the response
// against guardrail policy (rejecting it outright on failure) but returns
// it with the vendor's raw, untransformed content — the same content a
// cache insert stores — so the truncation/disclaimer transform happens
// exactly once here, mirroring serveCacheHit below, instead of being baked
// into the cached bytes and re-applied a second time on every hit.
func (h *HTTPServer) serveFresh(ctx *fasthttp.RequestCtx, resp *providers.CanonicalResponse) {
	finalContent, err := guardrails.Check(h.store.Guardrails(), lastAssistantContent(resp))
	if err != nil {
		// dispatch.go already validated this same response against
		// guardrails before returning it; reaching an error here means
		// policy changed in the narrow window since — degrade to the
		// standard guardrail-rejection response rather than serve content
		// that no longer passes.
		writeDispatchError(ctx, &providers.GuardrailError{Err: err})
		return
	}
	out := *resp
	setLastAssistantContent(&out, finalContent)
	writeCanonical(ctx, &out)
}

// serveCacheHit re-applies guardrails to the cached content before serving
// it — guardrail policy changes take effect on the next request for a
// cached fingerprint without a cache wipe, per spec.md §4.5.
func (h *HTTPServer) serveCacheHit(ctx *fasthttp.RequestCtx, provider string, entry cache.CacheEntry, requestID string) {
	resp := entry.Response

	finalContent, err := guardrails.Check(h.store.Guardrails(), lastAssistantContent(&resp))
	if err != nil {
		h.analytics.RecordCacheHit()
		h.analytics.RecordFailure(provider)
		h.analytics.RecordError(provider, "GuardrailsCheckFailed", err.Error(), requestID)
		h.log.Warn("ingress", "guardrails rejected cached response", map[string]any{
			"requestId": requestID, "provider": provider, "error": err.Error(),
		})
		writeDispatchError(ctx, &providers.GuardrailError{Err: err})
		return
	}
	setLastAssistantContent(&resp, finalContent)

	if _, refreshOnHit := h.store.CacheTTL(); refreshOnHit {
		resp.Created = time.Now().Unix()
	}

	h.analytics.RecordCacheHit()
	h.analytics.RecordSuccess(provider)

	writeCanonical(ctx, &resp)
}

// writeDispatchError maps a dispatch.Dispatch error onto the flat
// client-facing envelope and an appropriate HTTP status, per spec.md §7.
func writeDispatchError(ctx *fasthttp.RequestCtx, err error) {
	if errors.Is(err, dispatch.ErrNoUserMessage) || errors.Is(err, dispatch.ErrMultipleSystemMessages) {
		apierr.WriteFlat(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	var notConfigured *providers.ErrNotConfigured
	if errors.As(err, &notConfigured) {
		apierr.WriteFlat(ctx, fasthttp.StatusBadGateway, err.Error())
		return
	}

	var guardErr *providers.GuardrailError
	if errors.As(err, &guardErr) {
		apierr.WriteFlat(ctx, fasthttp.StatusBadGateway, "GuardrailsCheckFailed: "+guardErr.Error())
		return
	}

	// Checked ahead of the bare HTTPError/TransportError/DecodeError cases
	// below: an AllProvidersFailedError wraps one of those as its Err, and
	// the more specific "every candidate failed" message should win.
	var allFailed *dispatch.AllProvidersFailedError
	if errors.As(err, &allFailed) {
		apierr.WriteFlat(ctx, fasthttp.StatusBadGateway, err.Error())
		return
	}

	var statusErr providers.StatusCoder
	if errors.As(err, &statusErr) {
		apierr.WriteFlat(ctx, fasthttp.StatusBadGateway,
			fmt.Sprintf("provider error: upstream returned status %d", statusErr.HTTPStatus()))
		return
	}

	apierr.WriteFlat(ctx, fasthttp.StatusBadGateway, err.Error())
}

func (h *HTTPServer) handleHealth(ctx *fasthttp.RequestCtx) {
	if h.health == nil {
		writeJSON(ctx, map[string]any{"status": "ok", "version": Version})
		return
	}
	writeJSON(ctx, h.health.Snapshot())
}

func (h *HTTPServer) handleReadiness(ctx *fasthttp.RequestCtx) {
	if h.health == nil || h.health.ReadinessOK() {
		writeJSON(ctx, map[string]string{"status": "ok"})
		return
	}
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	writeJSON(ctx, map[string]string{"status": "unavailable"})
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}

func validProviderName(name string) bool {
	for _, n := range providers.Names {
		if n == name {
			return true
		}
	}
	return false
}

func lastAssistantContent(resp *providers.CanonicalResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

// setLastAssistantContent rebinds resp.Choices to a fresh slice rather than
// mutating resp.Choices[0] in place: resp is frequently a shallow value
// copy of a cached or about-to-be-cached response (cache.Insert and the
// serve path both copy the CanonicalResponse struct but share its Choices
// backing array), so an in-place write here would leak the guardrailed
// text back into the cached entry.
func setLastAssistantContent(resp *providers.CanonicalResponse, content string) {
	if len(resp.Choices) == 0 {
		return
	}
	choices := make([]providers.Choice, len(resp.Choices))
	copy(choices, resp.Choices)
	choices[0].Message.Content = content
	resp.Choices = choices
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
