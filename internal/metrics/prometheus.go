// Package metrics provides a Prometheus metrics registry for the bridge
// quote aggregator.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// bridgequote_inflight_requests
	inFlight prometheus.Gauge

	// bridgequote_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// bridgequote_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// bridgequote_http_request_size_bytes{route}
	httpReqSize *prometheus.HistogramVec

	// bridgequote_http_response_size_bytes{route,status}
	httpRespSize *prometheus.HistogramVec

	// bridgequote_adapter_requests_total{bridge,outcome}
	adapterRequests *prometheus.CounterVec

	// bridgequote_adapter_duration_seconds{bridge,outcome}
	adapterDuration *prometheus.HistogramVec

	// bridgequote_adapter_estimated_total{bridge} — fallback-estimate quotes
	adapterEstimated *prometheus.CounterVec

	// cache_hits_total{tier} / cache_misses_total
	cacheHits   *prometheus.CounterVec
	cacheMisses prometheus.Counter

	// bridgequote_cache_operations_total{op,result}
	cacheOps *prometheus.CounterVec

	// bridgequote_adapter_errors_total{bridge,error_kind}
	adapterErrors *prometheus.CounterVec

	// bridgequote_circuit_breaker_state{service} — 0=closed, 1=open, 2=half-open
	circuitBreakerState *prometheus.GaugeVec

	// bridgequote_circuit_breaker_rejections_total{service,state}
	cbRejections *prometheus.CounterVec

	// bridgequote_ratelimit_total{result}
	rateLimitTotal *prometheus.CounterVec

	// bridgequote_dependency_health{dependency} — 1=ok, 0=degraded/down
	dependencyHealth *prometheus.GaugeVec

	// bridgequote_route_score{bridge} — last score observed for a bridge
	scoredRoute *prometheus.GaugeVec

	// bridgequote_build_info{version}
	buildInfo *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	// Baseline runtime metrics even with a private registry.
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridgequote_inflight_requests",
			Help: "Current number of in-flight HTTP requests handled by the server",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridgequote_http_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridgequote_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (end-to-end, includes cache + adapter fan-out)",
				Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"route"},
		),

		httpReqSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridgequote_http_request_size_bytes",
				Help:    "HTTP request body size in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 2, 10),
			},
			[]string{"route"},
		),

		httpRespSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridgequote_http_response_size_bytes",
				Help:    "HTTP response body size in bytes",
				Buckets: prometheus.ExponentialBuckets(256, 2, 12),
			},
			[]string{"route", "status"},
		),

		adapterRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridgequote_adapter_requests_total",
				Help: "Total bridge adapter invocations by outcome",
			},
			[]string{"bridge", "outcome"},
		),

		adapterDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridgequote_adapter_duration_seconds",
				Help:    "Bridge adapter call duration in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"bridge", "outcome"},
		),

		adapterEstimated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridgequote_adapter_estimated_total",
				Help: "Quotes served from an adapter's fallback estimate rather than a parsed upstream response",
			},
			[]string{"bridge"},
		),

		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total cache hits by tier",
			},
			[]string{"tier"},
		),

		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),

		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridgequote_cache_operations_total",
				Help: "Cache operations by type and result",
			},
			[]string{"op", "result"},
		),

		adapterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridgequote_adapter_errors_total",
				Help: "Total adapter errors by kind",
			},
			[]string{"bridge", "error_kind"},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bridgequote_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed,1=open,2=half-open)",
			},
			[]string{"service"},
		),

		cbRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridgequote_circuit_breaker_rejections_total",
				Help: "Requests rejected due to circuit breaker state",
			},
			[]string{"service", "state"},
		),

		rateLimitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridgequote_ratelimit_total",
				Help: "Rate limit decisions",
			},
			[]string{"result"},
		),

		dependencyHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bridgequote_dependency_health",
				Help: "Dependency health status (1=ok, 0=degraded/down)",
			},
			[]string{"dependency"},
		),

		scoredRoute: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bridgequote_route_score",
				Help: "Most recently observed composite score for a bridge",
			},
			[]string{"bridge"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bridgequote_build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.httpReqSize,
		r.httpRespSize,
		r.adapterRequests,
		r.adapterDuration,
		r.adapterEstimated,
		r.cacheHits,
		r.cacheMisses,
		r.cacheOps,
		r.adapterErrors,
		r.circuitBreakerState,
		r.cbRejections,
		r.rateLimitTotal,
		r.dependencyHealth,
		r.scoredRoute,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records end-to-end HTTP metrics for one request.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration, reqBytes, respBytes int) {
	status := strconv.Itoa(statusCode)
	r.httpRequestsTotal.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
	if reqBytes >= 0 {
		r.httpReqSize.WithLabelValues(route).Observe(float64(reqBytes))
	}
	if respBytes >= 0 {
		r.httpRespSize.WithLabelValues(route, status).Observe(float64(respBytes))
	}
}

// ObserveAdapter records one bridge adapter call. outcome is one of
// "success", "estimate", or "error".
func (r *Registry) ObserveAdapter(bridgeName, outcome string, dur time.Duration) {
	r.adapterRequests.WithLabelValues(bridgeName, outcome).Inc()
	r.adapterDuration.WithLabelValues(bridgeName, outcome).Observe(dur.Seconds())
	if outcome == "estimate" {
		r.adapterEstimated.WithLabelValues(bridgeName).Inc()
	}
}

// RecordAdapterError increments the per-bridge error counter for errKind
// (one of the BridgeError kinds, e.g. "timeout", "network").
func (r *Registry) RecordAdapterError(bridgeName, errKind string) {
	r.adapterErrors.WithLabelValues(bridgeName, errKind).Inc()
}

// RecordRateLimit records one rate-limiter decision ("allowed" or "rejected").
func (r *Registry) RecordRateLimit(result string) {
	r.rateLimitTotal.WithLabelValues(result).Inc()
}

// CacheHit records a hit against the given cache tier ("fresh" or "stale").
func (r *Registry) CacheHit(tier string) {
	r.cacheHits.WithLabelValues(tier).Inc()
	r.cacheOps.WithLabelValues("get", "hit").Inc()
}

func (r *Registry) CacheMiss() {
	r.cacheMisses.Inc()
	r.cacheOps.WithLabelValues("get", "miss").Inc()
}

func (r *Registry) CacheSetOK() {
	r.cacheOps.WithLabelValues("set", "ok").Inc()
}

func (r *Registry) CacheSetError() {
	r.cacheOps.WithLabelValues("set", "error").Inc()
}

// SetDependencyHealth records the latest probe result for a named
// dependency (e.g. "cache", "security"). Used by proxy.HealthChecker.
func (r *Registry) SetDependencyHealth(dependency string, ok bool) {
	if ok {
		r.dependencyHealth.WithLabelValues(dependency).Set(1)
		return
	}
	r.dependencyHealth.WithLabelValues(dependency).Set(0)
}

// ObserveRouteScore records the most recent composite score computed for
// a bridge, for dashboards tracking scoring drift over time.
func (r *Registry) ObserveRouteScore(bridgeName string, score float64) {
	r.scoredRoute.WithLabelValues(bridgeName).Set(score)
}

func (r *Registry) SetBuildInfo(version string) {
	// Gauge is used so the time series always exists.
	r.buildInfo.WithLabelValues(version).Set(1)
}

// SetCircuitBreaker sets the circuit breaker state gauge for a service
// ("gasprice", "tokenprice", ...).
func (r *Registry) SetCircuitBreaker(service string, state int64) {
	r.circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

func (r *Registry) RecordCircuitBreakerRejection(service, state string) {
	r.cbRejections.WithLabelValues(service, state).Inc()
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
