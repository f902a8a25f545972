// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra      — external connections (Redis, optionally ClickHouse)
//  2. initServices   — cache, rate limiter, metrics registry, optional price oracles
//  3. initAggregator — bridge adapter registry and aggregator
//  4. initServer     — HTTP server, health checker, management routes
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nulpointcorp/bridgequote/internal/bridge"
	"github.com/nulpointcorp/bridgequote/internal/bridge/adapters/across"
	"github.com/nulpointcorp/bridgequote/internal/bridge/adapters/axelar"
	"github.com/nulpointcorp/bridgequote/internal/bridge/adapters/cbridge"
	"github.com/nulpointcorp/bridgequote/internal/bridge/adapters/hop"
	"github.com/nulpointcorp/bridgequote/internal/bridge/adapters/stargate"
	"github.com/nulpointcorp/bridgequote/internal/bridge/adapters/synapse"
	npCache "github.com/nulpointcorp/bridgequote/internal/cache"
	"github.com/nulpointcorp/bridgequote/internal/config"
	"github.com/nulpointcorp/bridgequote/internal/gasprice"
	"github.com/nulpointcorp/bridgequote/internal/logger"
	"github.com/nulpointcorp/bridgequote/internal/metrics"
	"github.com/nulpointcorp/bridgequote/internal/proxy"
	"github.com/nulpointcorp/bridgequote/internal/ratelimit"
	"github.com/nulpointcorp/bridgequote/internal/security"
	"github.com/nulpointcorp/bridgequote/internal/tokenprice"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	rdb *redis.Client

	reqLogger     *logger.Logger
	exact         *npCache.ExactCache
	quoteCache    *npCache.QuoteCache
	limiter       *ratelimit.QuoteLimiter
	globalLimiter *ratelimit.GlobalLimiter // nil when GLOBAL_RATE_LIMIT_PER_MINUTE=0
	secRepo       *security.Repository     // nil when ClickHouse is not configured

	gasPrice   *gasprice.Client
	tokenPrice *tokenprice.Client
	cb         *proxy.CircuitBreaker

	prom *metrics.Registry

	adapterNames []string
	aggregator   *bridge.Aggregator
	handler      *bridge.Handler
	health       *proxy.HealthChecker
	mgmt         *proxy.ManagementRoutes
	server       *proxy.Server
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"services", a.initServices},
		{"aggregator", a.initAggregator},
		{"server", a.initServer},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or an error
// occurs. It closes the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting bridge quote aggregator",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.Any("adapters", a.adapterNames),
		slog.Bool("security_enabled", a.secRepo != nil),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.StartWithRoutes(addr, a.mgmt)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times in sequence; concurrent calls are not synchronized.
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
	if a.secRepo != nil {
		if err := a.secRepo.Close(); err != nil {
			a.log.Error("clickhouse close error", slog.String("error", err.Error()))
		}
		a.secRepo = nil
	}
	if a.exact != nil {
		if err := a.exact.Close(); err != nil {
			a.log.Error("redis cache close error", slog.String("error", err.Error()))
		}
		a.exact = nil
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

// redisPinger returns a zero-argument probe function suitable for the
// HealthChecker. Reuses the existing client — no new connections.
func redisPinger(ctx context.Context, rdb *redis.Client) func() bool {
	return func() bool {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err() == nil
	}
}

// buildAdapters returns the bridge adapter registry in a fixed, stable
// order. The registry's length is what AggregatedResultMeta.totalRoutes
// reports and its order is the aggregator's result order, so it must
// never change silently — adding a bridge means appending here, never
// reordering.
func buildAdapters() []bridge.Adapter {
	return []bridge.Adapter{
		across.New(),
		axelar.New(),
		cbridge.New(),
		hop.New(),
		stargate.New(),
		synapse.New(),
	}
}
