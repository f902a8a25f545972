package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/bridgequote/internal/bridge"
	"github.com/nulpointcorp/bridgequote/internal/logger"
	"github.com/nulpointcorp/bridgequote/internal/metrics"
	"github.com/nulpointcorp/bridgequote/pkg/apierr"
)

// SecurityLister is the contract Server needs to serve GET
// /security/bridges — satisfied by *security.Repository and declared
// here so this package does not import internal/security directly.
type SecurityLister interface {
	GetBatchSecurityMetadata(ctx context.Context, bridges []string) ([]bridge.SecurityMetadata, error)
}

// Server adapts bridge.Handler onto fasthttp: it parses GET /quotes into
// a bridge.RawQuoteRequest, runs the pipeline, and shapes the result
// (or a HandlerError) into an HTTP response with the cache-state headers
// spec.md §7 requires. Grounded on the teacher's Gateway for the overall
// shape (constructor DI, nil-safe optional collaborators) though none of
// its dispatch logic survives — only GET /quotes runs the quote pipeline.
type Server struct {
	handler     *bridge.Handler
	health      *HealthChecker
	security    SecurityLister
	bridgeNames []string
	corsOrigins []string
	metrics     *metrics.Registry
	reqLog      *logger.Logger
	log         *slog.Logger
}

// ServerOptions configures a Server. Metrics, Security, and RequestLog
// are optional; a nil Security disables GET /security/bridges (404).
type ServerOptions struct {
	CORSOrigins []string
	Metrics     *metrics.Registry
	Security    SecurityLister
	RequestLog  *logger.Logger
	Logger      *slog.Logger
}

// NewServer builds a Server around an already-wired Handler, health
// checker, and adapter name list (used for the security-bridges listing
// and echoed nowhere else).
func NewServer(h *bridge.Handler, health *HealthChecker, bridgeNames []string, opts ServerOptions) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		handler:     h,
		health:      health,
		security:    opts.Security,
		bridgeNames: bridgeNames,
		corsOrigins: opts.CORSOrigins,
		metrics:     opts.Metrics,
		reqLog:      opts.RequestLog,
		log:         log,
	}
}

func (s *Server) handleQuotes(ctx *fasthttp.RequestCtx) {
	start := time.Now()

	raw := bridge.RawQuoteRequest{
		FromChain: string(ctx.QueryArgs().Peek("from")),
		ToChain:   string(ctx.QueryArgs().Peek("to")),
		Token:     string(ctx.QueryArgs().Peek("token")),
		Amount:    string(ctx.QueryArgs().Peek("amount")),
	}
	if slipStr := string(ctx.QueryArgs().Peek("slippage")); slipStr != "" {
		if v, err := strconv.ParseFloat(slipStr, 64); err == nil {
			raw.Slippage = &v
		}
	}
	raw.ClientID = bridge.ExtractClientID(func(name string) string {
		return string(ctx.Request.Header.Peek(name))
	}, ctx.RemoteAddr().String())

	outcome, err := s.handler.HandleQuotes(ctx, raw)
	status := fasthttp.StatusOK
	if err != nil {
		status = s.writeError(ctx, err)
		s.observe(ctx, status, start)
		s.logQuotesRequest(raw, outcome, status, start)
		return
	}

	ctx.Response.Header.Set("X-Cache", outcome.CacheState)
	if outcome.CacheState == "STALE" {
		ctx.Response.Header.Set("Warning", `110 - "Response is Stale"`)
		ctx.Response.Header.Set("Cache-Control", "max-age=0, must-revalidate")
	} else {
		ctx.Response.Header.Set("Cache-Control", "public, max-age=15")
	}

	ctx.SetContentType("application/json")
	if outcome.RawBody != nil {
		ctx.SetBody(outcome.RawBody)
	} else {
		body, err := json.Marshal(outcome.Body)
		if err != nil {
			s.writeError(ctx, err)
			s.observe(ctx, fasthttp.StatusInternalServerError, start)
			s.logQuotesRequest(raw, outcome, fasthttp.StatusInternalServerError, start)
			return
		}
		ctx.SetBody(body)
	}
	s.observe(ctx, status, start)
	s.logQuotesRequest(raw, outcome, status, start)
}

func (s *Server) logQuotesRequest(raw bridge.RawQuoteRequest, outcome bridge.Outcome, status int, start time.Time) {
	if s.reqLog == nil {
		return
	}
	s.reqLog.Log(logger.RequestLog{
		ID:         uuid.New(),
		FromChain:  raw.FromChain,
		ToChain:    raw.ToChain,
		Asset:      raw.Token,
		RouteCount: len(outcome.Body.Routes),
		CacheState: outcome.CacheState,
		LatencyMs:  uint16(min(time.Since(start).Milliseconds(), math.MaxUint16)),
		Status:     uint16(status),
		CreatedAt:  time.Now(),
	})
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, err error) int {
	if he, ok := err.(*bridge.HandlerError); ok {
		typ := apierr.TypeServerError
		switch he.Status {
		case fasthttp.StatusBadRequest:
			typ = apierr.TypeInvalidRequest
		case fasthttp.StatusTooManyRequests:
			typ = apierr.TypeRateLimitError
			ctx.Response.Header.Set("Retry-After", "60")
		case fasthttp.StatusBadGateway, fasthttp.StatusServiceUnavailable:
			typ = apierr.TypeProviderError
		}
		apierr.Write(ctx, he.Status, he.Message, typ, he.Code)
		return he.Status
	}
	s.log.Error("quotes_handler_error", slog.String("error", err.Error()))
	apierr.Write(ctx, fasthttp.StatusInternalServerError, "internal server error", apierr.TypeServerError, apierr.CodeInternalError)
	return fasthttp.StatusInternalServerError
}

func (s *Server) observe(ctx *fasthttp.RequestCtx, status int, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveHTTP("/quotes", status, time.Since(start), ctx.Request.Header.ContentLength(), len(ctx.Response.Body()))
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	if s.health == nil {
		writeJSON(ctx, map[string]any{"status": "ok"})
		return
	}
	writeJSON(ctx, s.health.Snapshot())
}

func (s *Server) handleReadiness(ctx *fasthttp.RequestCtx) {
	if s.health == nil || s.health.ReadinessOK() {
		writeJSON(ctx, map[string]string{"status": "ok"})
		return
	}
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	writeJSON(ctx, map[string]string{"status": "unavailable"})
}

// handleSecurityBridges serves GET /security/bridges (all configured
// bridges) and GET /security/bridges/:name (one bridge).
func (s *Server) handleSecurityBridges(ctx *fasthttp.RequestCtx) {
	if s.security == nil {
		apierr.Write(ctx, fasthttp.StatusNotFound, "security metadata is not configured", apierr.TypeInvalidRequest, "not_found")
		return
	}

	names := s.bridgeNames
	if name := ctx.UserValue("name"); name != nil {
		names = []string{name.(string)}
	}

	meta, err := s.security.GetBatchSecurityMetadata(ctx, names)
	if err != nil {
		s.log.Error("security_lookup_error", slog.String("error", err.Error()))
		apierr.Write(ctx, fasthttp.StatusBadGateway, "security metadata unavailable", apierr.TypeServerError, apierr.CodeInternalError)
		return
	}

	if ctx.UserValue("name") != nil {
		if len(meta) == 0 {
			apierr.Write(ctx, fasthttp.StatusNotFound, "unknown bridge", apierr.TypeInvalidRequest, "not_found")
			return
		}
		writeJSON(ctx, meta[0])
		return
	}
	writeJSON(ctx, map[string]any{"bridges": meta})
}
