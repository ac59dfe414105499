package ingress

import (
	"encoding/json"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/aigateway/gateway/internal/analytics"
	"github.com/aigateway/gateway/internal/cache"
	"github.com/aigateway/gateway/internal/config"
	"github.com/aigateway/gateway/internal/ratelimit"
	"github.com/aigateway/gateway/pkg/apierr"
)

// AdminServer is the operator-facing control surface: "replace under lock"
// for every PUT, "snapshot under lock" for every GET, per spec.md §6 — no
// behavior beyond direct reads and writes of the Config Store, Cache, and
// Analytics singletons.
type AdminServer struct {
	store     *config.Store
	cache     cache.Cache
	limiter   *ratelimit.Limiter
	analytics *analytics.Counters
}

// NewAdminServer wires the admin HTTP surface over the same singletons the
// public surface uses.
func NewAdminServer(store *config.Store, c cache.Cache, limiter *ratelimit.Limiter, an *analytics.Counters) *AdminServer {
	return &AdminServer{store: store, cache: c, limiter: limiter, analytics: an}
}

// Handler builds the admin fasthttp handler. It carries the same recovery
// and request-ID middleware as the public surface but none of the
// rate-limit/CORS/security-header treatment a public-facing client needs —
// this surface is assumed to sit behind an operator-only network boundary.
func (a *AdminServer) Handler() fasthttp.RequestHandler {
	r := router.New()

	r.GET("/stats", a.handleStats)

	r.GET("/system-prompt", a.handleGetSystemPrompt)
	r.PUT("/system-prompt", a.handlePutSystemPrompt)

	r.GET("/guardrails", a.handleGetGuardrails)
	r.PUT("/guardrails", a.handlePutGuardrails)

	r.GET("/cache", a.handleGetCache)
	r.DELETE("/cache", a.handleClearCache)

	r.GET("/logging", a.handleGetLogging)
	r.PUT("/logging", a.handlePutLogging)

	r.GET("/rate-limit/default", a.handleGetDefaultPlan)
	r.PUT("/rate-limit/default", a.handlePutDefaultPlan)
	r.GET("/rate-limit/wildcard", a.handleGetWildcardPlan)
	r.PUT("/rate-limit/wildcard", a.handlePutWildcardPlan)
	r.GET("/rate-limit/clients/{ip}", a.handleGetClientPlan)
	r.PUT("/rate-limit/clients/{ip}", a.handlePutClientPlan)
	r.DELETE("/rate-limit/clients/{ip}", a.handleDeleteClientPlan)

	r.GET("/service-routes", a.handleGetServiceRoutes)
	r.PUT("/service-routes/{service}", a.handlePutServiceRoute)
	r.DELETE("/service-routes/{service}", a.handleDeleteServiceRoute)

	return applyMiddleware(r.Handler, recovery, requestID)
}

func (a *AdminServer) handleStats(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, a.analytics.Snapshot())
}

func (a *AdminServer) handleGetSystemPrompt(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, map[string]string{"prompt": a.store.SystemPrompt()})
}

func (a *AdminServer) handlePutSystemPrompt(ctx *fasthttp.RequestCtx) {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.WriteFlat(ctx, fasthttp.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	a.store.ReplaceSystemPrompt(body.Prompt)
	writeJSON(ctx, map[string]string{"prompt": body.Prompt})
}

func (a *AdminServer) handleGetGuardrails(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, a.store.Guardrails())
}

func (a *AdminServer) handlePutGuardrails(ctx *fasthttp.RequestCtx) {
	var body config.GuardrailConfig
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.WriteFlat(ctx, fasthttp.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	a.store.ReplaceGuardrails(body)
	writeJSON(ctx, body)
}

func (a *AdminServer) handleGetCache(ctx *fasthttp.RequestCtx) {
	if a.cache == nil {
		writeJSON(ctx, map[string]any{"enabled": false, "entries": 0})
		return
	}
	writeJSON(ctx, map[string]any{"enabled": true, "entries": a.cache.Len()})
}

func (a *AdminServer) handleClearCache(ctx *fasthttp.RequestCtx) {
	if a.cache != nil {
		a.cache.Clear()
	}
	writeJSON(ctx, map[string]string{"status": "cleared"})
}

func (a *AdminServer) handleGetLogging(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, a.store.Logging())
}

func (a *AdminServer) handlePutLogging(ctx *fasthttp.RequestCtx) {
	var body config.LoggingConfig
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.WriteFlat(ctx, fasthttp.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	a.store.ReplaceLogging(body)
	writeJSON(ctx, body)
}

func (a *AdminServer) handleGetDefaultPlan(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, a.store.DefaultPlan())
}

func (a *AdminServer) handlePutDefaultPlan(ctx *fasthttp.RequestCtx) {
	var body config.RateLimitPlan
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.WriteFlat(ctx, fasthttp.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	a.store.ReplaceDefaultPlan(body)
	if a.limiter != nil {
		a.limiter.ResetDefaultPlanIPs()
	}
	writeJSON(ctx, a.store.DefaultPlan())
}

func (a *AdminServer) handleGetWildcardPlan(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, a.store.WildcardPlan())
}

func (a *AdminServer) handlePutWildcardPlan(ctx *fasthttp.RequestCtx) {
	var body config.RateLimitPlan
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.WriteFlat(ctx, fasthttp.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	a.store.ReplaceWildcardPlan(body)
	writeJSON(ctx, a.store.WildcardPlan())
}

func (a *AdminServer) handleGetClientPlan(ctx *fasthttp.RequestCtx) {
	ip, _ := ctx.UserValue("ip").(string)
	plan, ok := a.store.ClientPlan(ip)
	if !ok {
		apierr.WriteFlat(ctx, fasthttp.StatusNotFound, "no client plan configured for "+ip)
		return
	}
	writeJSON(ctx, plan)
}

func (a *AdminServer) handlePutClientPlan(ctx *fasthttp.RequestCtx) {
	ip, _ := ctx.UserValue("ip").(string)
	var body config.RateLimitPlan
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.WriteFlat(ctx, fasthttp.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	a.store.ReplaceClientPlan(ip, body)
	writeJSON(ctx, body)
}

func (a *AdminServer) handleDeleteClientPlan(ctx *fasthttp.RequestCtx) {
	ip, _ := ctx.UserValue("ip").(string)
	a.store.DeleteClientPlan(ip)
	writeJSON(ctx, map[string]string{"status": "deleted"})
}

func (a *AdminServer) handleGetServiceRoutes(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, a.store.ServiceRoutes())
}

func (a *AdminServer) handlePutServiceRoute(ctx *fasthttp.RequestCtx) {
	service, _ := ctx.UserValue("service").(string)
	var body struct {
		TargetBaseURL string `json:"targetBaseUrl"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.WriteFlat(ctx, fasthttp.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	a.store.ReplaceServiceRoute(service, body.TargetBaseURL)
	writeJSON(ctx, map[string]string{"service": service, "targetBaseUrl": body.TargetBaseURL})
}

func (a *AdminServer) handleDeleteServiceRoute(ctx *fasthttp.RequestCtx) {
	service, _ := ctx.UserValue("service").(string)
	a.store.DeleteServiceRoute(service)
	writeJSON(ctx, map[string]string{"status": "deleted"})
}
