// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra     — external connections (Redis, only when RATE_LIMIT_BACKEND=redis)
//  2. initProviders — LLM provider clients for every configured vendor slot
//  3. initServices  — response cache, analytics counters, structured logger,
//     Prometheus registry, rate limiter, circuit breaker, dispatcher
//  4. initIngress   — the three external surfaces: public HTTP, admin HTTP,
//     gRPC
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/aigateway/gateway/internal/analytics"
	npCache "github.com/aigateway/gateway/internal/cache"
	"github.com/aigateway/gateway/internal/config"
	"github.com/aigateway/gateway/internal/dispatch"
	"github.com/aigateway/gateway/internal/ingress"
	"github.com/aigateway/gateway/internal/logger"
	"github.com/aigateway/gateway/internal/metrics"
	"github.com/aigateway/gateway/internal/providers"
	"github.com/aigateway/gateway/internal/ratelimit"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	store   *config.Store
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connection — nil unless RATE_LIMIT_BACKEND=redis.
	rdb *redis.Client

	reqLogger *logger.Logger
	memCache  *npCache.MemoryCache
	exclude   *npCache.ExclusionList

	prom      *metrics.Registry
	analytics *analytics.Counters
	breaker   *dispatch.CircuitBreaker

	provs      map[string]providers.Provider
	dispatcher *dispatch.Dispatcher

	memLimiter *ratelimit.Limiter
	limiter    ratelimit.Checker

	health *ingress.HealthChecker

	httpSrv  *ingress.HTTPServer
	adminSrv *ingress.AdminServer
	grpcSrv  *grpc.Server
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{store: config.NewStore(*cfg), version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"providers", a.initProviders},
		{"services", a.initServices},
		{"ingress", a.initIngress},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the public HTTP, admin HTTP, and gRPC listeners and blocks
// until ctx is cancelled or one of them errors. It closes the app
// gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	cfg := a.store.Snapshot()

	httpAddr := fmt.Sprintf(":%d", cfg.Port)
	adminAddr := fmt.Sprintf(":%d", cfg.AdminPort)
	grpcAddr := fmt.Sprintf(":%d", cfg.GRPCPort)

	a.log.Info("starting gateway",
		slog.String("version", a.version),
		slog.String("http_addr", httpAddr),
		slog.String("admin_addr", adminAddr),
		slog.String("grpc_addr", grpcAddr),
		slog.Int("providers", len(a.provs)),
	)

	httpServer := &fasthttp.Server{
		Handler:      a.httpSrv.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	adminServer := &fasthttp.Server{
		Handler:      a.adminSrv.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.ListenAndServe(httpAddr)
	})

	g.Go(func() error {
		return adminServer.ListenAndServe(adminAddr)
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("grpc: listen %s: %w", grpcAddr, err)
		}
		return a.grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		<-gctx.Done()
		_ = httpServer.Shutdown()
		_ = adminServer.Shutdown()
		a.grpcSrv.GracefulStop()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call more than
// once, but it takes no lock, so calls must not run concurrently.
func (a *App) Close() {
	if a.health != nil {
		a.health.Close()
		a.health = nil
	}
	if a.reqLogger != nil {
		if err := a.reqLogger.Close(); err != nil {
			a.log.Error("logger close error", slog.String("error", err.Error()))
		}
		a.reqLogger = nil
	}
	if a.memCache != nil {
		a.memCache.Close()
		a.memCache = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// ── Private helpers ──────────────────────────────────────────────────────────

// connectRedis parses the URL and verifies connectivity with a PING.
// Returns an error — callers decide whether to fatal or degrade.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
