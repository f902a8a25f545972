package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nulpointcorp/bridgequote/internal/bridge"
	npCache "github.com/nulpointcorp/bridgequote/internal/cache"
	"github.com/nulpointcorp/bridgequote/internal/gasprice"
	"github.com/nulpointcorp/bridgequote/internal/logger"
	"github.com/nulpointcorp/bridgequote/internal/metrics"
	"github.com/nulpointcorp/bridgequote/internal/proxy"
	"github.com/nulpointcorp/bridgequote/internal/ratelimit"
	"github.com/nulpointcorp/bridgequote/internal/security"
	"github.com/nulpointcorp/bridgequote/internal/tokenprice"
)

// initInfra establishes external connections. Redis is always required
// (it backs both the quote cache and the rate limiter); ClickHouse is
// dialled only when cfg.SecurityEnabled() reports credentials were
// supplied — its absence degrades security enrichment, never quoting.
func (a *App) initInfra(ctx context.Context) error {
	a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))
	rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	a.rdb = rdb
	a.log.Info("redis connected")

	if a.cfg.SecurityEnabled() {
		secRepo, err := security.Open(ctx, security.Config{
			Addr:     a.cfg.ClickHouse.Addr,
			Database: a.cfg.ClickHouse.Database,
			Username: a.cfg.ClickHouse.Username,
			Password: a.cfg.ClickHouse.Password,
		})
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		a.secRepo = secRepo
		a.log.Info("clickhouse security repository connected")
	} else {
		a.log.Info("clickhouse not configured, security enrichment disabled")
	}

	return nil
}

// initServices builds the cache, rate limiter, metrics registry, async
// request logger, and the optional gas-price/token-price collaborators.
func (a *App) initServices(ctx context.Context) error {
	a.exact = npCache.NewExactCacheFromClient(a.rdb)
	a.quoteCache = npCache.NewQuoteCache(a.exact).WithTTLs(a.cfg.Cache.FreshTTL, a.cfg.Cache.StaleTTL)
	a.limiter = ratelimit.NewQuoteLimiter(a.rdb, a.cfg.RateLimit.QuotesPerMinute)
	if a.cfg.RateLimit.GlobalPerMinute > 0 {
		a.globalLimiter = ratelimit.NewGlobalLimiter(a.rdb, a.cfg.RateLimit.GlobalPerMinute)
	}

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	reqLogger, err := logger.New(a.baseCtx, a.log)
	if err != nil {
		return fmt.Errorf("request logger: %w", err)
	}
	a.reqLogger = reqLogger

	if a.cfg.GasPrice.APIKey != "" || a.cfg.TokenPrice.APIKey != "" {
		a.cb = proxy.NewCircuitBreakerWithConfig([]string{"gasprice", "tokenprice"}, proxy.CBConfig{
			ErrorThreshold:  a.cfg.CircuitBreaker.ErrorThreshold,
			TimeWindow:      a.cfg.CircuitBreaker.TimeWindow,
			HalfOpenTimeout: a.cfg.CircuitBreaker.HalfOpenTimeout,
		})
	}
	// gasprice.New/tokenprice.New both tolerate an empty API key — they
	// fall back to the oracle's unauthenticated tier — so these clients
	// are always built. The circuit breaker above gates their calls only
	// when an API key is set; without one there is no breaker and every
	// request calls them directly.
	a.gasPrice = gasprice.New(a.cfg.GasPrice.APIKey)
	a.tokenPrice = tokenprice.New(a.cfg.TokenPrice.APIKey)

	return nil
}

// initAggregator builds the fixed bridge adapter registry and the
// aggregator that fans requests out across it.
func (a *App) initAggregator(_ context.Context) error {
	adapters := buildAdapters()
	a.adapterNames = make([]string, len(adapters))
	for i, ad := range adapters {
		a.adapterNames[i] = ad.Name()
	}

	adapterCfg := bridge.AdapterConfig{
		HTTPClient: &http.Client{Timeout: a.cfg.Adapters.Timeout},
		Timeout:    a.cfg.Adapters.Timeout,
		Retries:    a.cfg.Adapters.Retries,
		Cache:      a.exact,
	}

	a.aggregator = bridge.NewAggregator(adapters, adapterCfg, a.cfg.Adapters.PerAdapterTimeout).
		WithMetrics(a.prom)

	return nil
}

// initServer wires the handler, health checker, and HTTP server.
//
// secLookup/secLister are assigned through an explicit nil check rather
// than a direct `var x bridge.SecurityLookup = a.secRepo` because a.secRepo
// is a typed nil *security.Repository when security is disabled — assigning
// a nil pointer to an interface variable produces a non-nil interface that
// compares != nil, which would silently turn security enrichment "on" with
// a repository that panics on first use.
func (a *App) initServer(ctx context.Context) error {
	var secLookup bridge.SecurityLookup
	var secLister proxy.SecurityLister
	securityReady := func() bool { return true }
	if a.secRepo != nil {
		secLookup = a.secRepo
		secLister = a.secRepo
		securityReady = func() bool {
			probeCtx, cancel := context.WithTimeout(a.baseCtx, security.DefaultLookupDeadline)
			defer cancel()
			_, err := a.secRepo.GetBatchSecurityMetadata(probeCtx, a.adapterNames)
			return err == nil
		}
	}

	a.handler = bridge.NewHandler(a.aggregator, a.quoteCache, a.limiter, secLookup)
	a.handler.GasPrice = a.gasPriceFn()
	a.handler.TokenPrice = a.tokenPriceFn()
	a.handler.RouteScoreMetrics = a.prom
	if a.globalLimiter != nil {
		a.handler.GlobalLimiter = a.globalLimiter
	}

	a.health = proxy.NewHealthChecker(
		ctx,
		a.adapterNames,
		redisPinger(a.baseCtx, a.rdb),
		securityReady,
		a.prom,
	)

	a.server = proxy.NewServer(a.handler, a.health, a.adapterNames, proxy.ServerOptions{
		CORSOrigins: a.cfg.CORSOrigins,
		Metrics:     a.prom,
		Security:    secLister,
		RequestLog:  a.reqLogger,
		Logger:      a.log,
	})

	a.mgmt = &proxy.ManagementRoutes{
		Metrics: a.prom.Handler(),
	}

	return nil
}

// gasPriceFn adapts a.gasPrice into the closure bridge.Handler expects,
// guarding the call with the shared circuit breaker when one is
// configured. A tripped breaker or an oracle error both degrade to "no
// gas data" rather than failing the quote.
func (a *App) gasPriceFn() func(context.Context, string) (bridge.GasEstimate, bool) {
	return func(ctx context.Context, chain string) (bridge.GasEstimate, bool) {
		if a.cb != nil && !a.cb.Allow("gasprice") {
			return bridge.GasEstimate{}, false
		}
		q, err := a.gasPrice.GetGasPrice(ctx, chain)
		if err != nil {
			if a.cb != nil {
				a.cb.RecordFailure("gasprice")
			}
			return bridge.GasEstimate{}, false
		}
		if a.cb != nil {
			a.cb.RecordSuccess("gasprice")
		}
		return bridge.GasEstimate{
			ProposeGasPriceGwei: q.ProposeGasPriceGwei,
			EthPriceUsd:         q.EthPriceUsd,
		}, true
	}
}

// tokenPriceFn mirrors gasPriceFn for the token-price oracle.
func (a *App) tokenPriceFn() func(context.Context, string) (float64, bool) {
	return func(ctx context.Context, token string) (float64, bool) {
		if a.cb != nil && !a.cb.Allow("tokenprice") {
			return 0, false
		}
		usd, err := a.tokenPrice.GetPrice(ctx, token)
		if err != nil {
			if a.cb != nil {
				a.cb.RecordFailure("tokenprice")
			}
			return 0, false
		}
		if a.cb != nil {
			a.cb.RecordSuccess("tokenprice")
		}
		return usd, true
	}
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
