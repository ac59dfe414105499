package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aigateway/gateway/internal/analytics"
	npCache "github.com/aigateway/gateway/internal/cache"
	"github.com/aigateway/gateway/internal/dispatch"
	"github.com/aigateway/gateway/internal/ingress"
	"github.com/aigateway/gateway/internal/logger"
	"github.com/aigateway/gateway/internal/metrics"
	"github.com/aigateway/gateway/internal/providers"
	anthropicprov "github.com/aigateway/gateway/internal/providers/anthropic"
	cohereprov "github.com/aigateway/gateway/internal/providers/cohere"
	geminiprov "github.com/aigateway/gateway/internal/providers/gemini"
	mistralprov "github.com/aigateway/gateway/internal/providers/mistral"
	ollamaprov "github.com/aigateway/gateway/internal/providers/ollama"
	openaiprov "github.com/aigateway/gateway/internal/providers/openai"
	"github.com/aigateway/gateway/internal/ratelimit"
)

// initInfra establishes optional external connections. Redis is only
// required when RATE_LIMIT_BACKEND=redis — the response cache itself has
// no Redis-backed variant (spec's persisted state is "none"; Redis here
// is purely a multi-replica rate-limit coordination knob).
func (a *App) initInfra(ctx context.Context) error {
	cfg := a.store.Snapshot()
	if cfg.RateLimitBackend == "redis" {
		a.log.Info("connecting to redis", slog.String("url", redactURL(cfg.RedisURL)))

		rdb, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	return nil
}

// initProviders builds the vendor provider map from the six configured
// slots. At least one must be configured — enforced by config.Load's
// validate() before we reach here.
func (a *App) initProviders(ctx context.Context) error {
	cfg := a.store.Snapshot()
	provs := make(map[string]providers.Provider)

	if cfg.OpenAI.Configured() {
		provs["openai"] = openaiprov.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Endpoint)
	}
	if cfg.Anthropic.Configured() {
		provs["anthropic"] = anthropicprov.New(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.Anthropic.Endpoint)
	}
	if cfg.Gemini.Configured() {
		p, err := geminiprov.New(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Endpoint)
		if err != nil {
			return fmt.Errorf("gemini: %w", err)
		}
		provs["gemini"] = p
	}
	if cfg.Ollama.Configured() {
		provs["ollama"] = ollamaprov.New(cfg.Ollama.APIKey, cfg.Ollama.Model, cfg.Ollama.Endpoint)
	}
	if cfg.Mistral.Configured() {
		provs["mistral"] = mistralprov.New(cfg.Mistral.APIKey, cfg.Mistral.Model, cfg.Mistral.Endpoint)
	}
	if cfg.Cohere.Configured() {
		provs["cohere"] = cohereprov.New(cfg.Cohere.APIKey, cfg.Cohere.Model, cfg.Cohere.Endpoint)
	}

	if len(provs) == 0 {
		return fmt.Errorf("no provider slots configured")
	}

	names := make([]string, 0, len(provs))
	for n := range provs {
		names = append(names, n)
	}
	a.log.Info("providers loaded", slog.Any("providers", names))

	a.provs = provs
	return nil
}

// initServices builds the response cache, analytics counters, structured
// logger, Prometheus registry, rate limiter, circuit breaker, and the
// dispatcher that sits on top of all of them.
func (a *App) initServices(ctx context.Context) error {
	cfg := a.store.Snapshot()

	a.memCache = npCache.NewMemoryCache(ctx, cfg.CacheTTL)
	a.log.Info("cache backend: memory (in-process)", slog.Duration("ttl", cfg.CacheTTL))

	if len(cfg.CacheExcludeExact) > 0 || len(cfg.CacheExcludePattern) > 0 {
		el, err := npCache.NewExclusionList(cfg.CacheExcludeExact, cfg.CacheExcludePattern)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		a.exclude = el
		a.log.Info("cache exclusions loaded", slog.Int("rules", el.Len()))
	}

	a.analytics = analytics.New()

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	var sink logger.Sink
	if cfg.Logging.SinkEnabled {
		switch cfg.Logging.SinkKind {
		case "clickhouse":
			chSink, err := analytics.NewClickHouseSink(ctx, cfg.Logging.SinkDSN)
			if err != nil {
				return fmt.Errorf("clickhouse sink: %w", err)
			}
			sink = chSink
			a.log.Info("log sink: clickhouse")
		default:
			return fmt.Errorf("unknown log sink kind: %s", cfg.Logging.SinkKind)
		}
	}

	reqLogger, err := logger.New(ctx, sink)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.reqLogger = reqLogger

	a.breaker = dispatch.NewCircuitBreaker(dispatch.BreakerConfig{
		ErrorThreshold:  cfg.CircuitBreakerErrorThreshold,
		TimeWindow:      cfg.CircuitBreakerTimeWindow,
		HalfOpenTimeout: cfg.CircuitBreakerHalfOpenTimeout,
	})

	switch cfg.RateLimitBackend {
	case "redis":
		rl := ratelimit.NewRedisLimiter(a.rdb, a.store)
		a.limiter = &redisLimiterAdapter{rl: rl, ctx: a.baseCtx, log: a.log}
		a.log.Info("rate limiter backend: redis")
	default:
		a.memLimiter = ratelimit.New(a.store)
		a.limiter = a.memLimiter
		a.log.Info("rate limiter backend: memory")
	}

	a.dispatcher = dispatch.New(a.store, a.provs, a.breaker, a.analytics, a.reqLogger)

	return nil
}

// initIngress wires the three external-facing surfaces over the singletons
// built by initServices: the public HTTP API, the admin HTTP API, and the
// gRPC service — all sharing the same Dispatcher.
func (a *App) initIngress(ctx context.Context) error {
	a.httpSrv = ingress.NewHTTPServer(a.store, a.dispatcher, a.limiter, a.memCache, a.exclude, a.analytics, a.reqLogger)
	a.adminSrv = ingress.NewAdminServer(a.store, a.memCache, a.memLimiter, a.analytics)
	a.grpcSrv = ingress.NewServer(a.dispatcher, a.reqLogger)

	a.health = ingress.NewHealthChecker(a.baseCtx, a.provs, func() bool { return true }, a.prom)
	a.httpSrv.SetHealthChecker(a.health)

	return nil
}

// redisLimiterAdapter lets the Redis-backed limiter satisfy
// ratelimit.Checker's synchronous, error-free Check signature: a failed
// Redis round trip fails the request open (Allowed: true) rather than
// blocking every client on a degraded rate-limit backend.
type redisLimiterAdapter struct {
	rl  *ratelimit.RedisLimiter
	ctx context.Context
	log *slog.Logger
}

func (r *redisLimiterAdapter) Check(clientIP string) ratelimit.Result {
	res, err := r.rl.Check(r.ctx, clientIP)
	if err != nil {
		r.log.Error("rate limit check failed, failing open", slog.String("error", err.Error()))
		return ratelimit.Result{Allowed: true}
	}
	return res
}
