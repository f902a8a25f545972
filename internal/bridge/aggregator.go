package bridge

import (
	"context"
	"sync"
	"time"
)

// AdapterMetrics is the subset of *metrics.Registry the aggregator needs
// to record per-adapter outcomes. Declared locally, like QuoteCache and
// RateLimiter, so this package does not import internal/metrics directly.
type AdapterMetrics interface {
	ObserveAdapter(bridgeName, outcome string, dur time.Duration)
	RecordAdapterError(bridgeName, errKind string)
}

// Aggregator fans a request out to a fixed, stably-ordered registry of
// adapters and collects every result, successful or not. It never
// sorts, dedups, or drops an adapter's slot — the caller gets exactly
// len(adapters) results back, in registry order.
type Aggregator struct {
	adapters          []Adapter
	perAdapterTimeout time.Duration
	adapterCfg        AdapterConfig
	metrics           AdapterMetrics
}

// NewAggregator builds an Aggregator over a fixed adapter registry.
// perAdapterTimeout defaults to DefaultAdapterTimeout when zero.
func NewAggregator(adapters []Adapter, adapterCfg AdapterConfig, perAdapterTimeout time.Duration) *Aggregator {
	if perAdapterTimeout <= 0 {
		perAdapterTimeout = DefaultAdapterTimeout
	}
	return &Aggregator{adapters: adapters, perAdapterTimeout: perAdapterTimeout, adapterCfg: adapterCfg}
}

// WithMetrics attaches an AdapterMetrics collaborator and returns the
// Aggregator for chaining. Nil is safe and disables instrumentation.
func (a *Aggregator) WithMetrics(m AdapterMetrics) *Aggregator {
	a.metrics = m
	return a
}

// GetAllQuotes queries every registered adapter in parallel, each under
// its own perAdapterTimeout child context, and returns one result per
// adapter in registry order.
func (a *Aggregator) GetAllQuotes(ctx context.Context, req NormalizedQuoteRequest) []BridgeQuoteResult {
	results := make([]BridgeQuoteResult, len(a.adapters))

	var wg sync.WaitGroup
	wg.Add(len(a.adapters))

	for i, adapter := range a.adapters {
		go func(i int, adapter Adapter) {
			defer wg.Done()

			adapterCtx, cancel := context.WithTimeout(ctx, a.perAdapterTimeout)
			defer cancel()

			start := time.Now()
			quote, err := adapter.GetQuote(adapterCtx, req, a.adapterCfg)
			dur := time.Since(start)
			if err != nil {
				if adapterCtx.Err() != nil && !isBridgeTimeout(err) {
					err = NewTimeoutError(a.perAdapterTimeout.Milliseconds())
				}
				if a.metrics != nil {
					a.metrics.ObserveAdapter(adapter.Name(), "error", dur)
					a.metrics.RecordAdapterError(adapter.Name(), errorKind(err))
				}
				results[i] = BridgeQuoteResult{Bridge: adapter.Name(), Err: err}
				return
			}
			if a.metrics != nil {
				outcome := "success"
				if quote.IsEstimated() {
					outcome = "estimate"
				}
				a.metrics.ObserveAdapter(adapter.Name(), outcome, dur)
			}
			results[i] = BridgeQuoteResult{Bridge: adapter.Name(), Quote: quote}
		}(i, adapter)
	}

	wg.Wait()
	return results
}

func isBridgeTimeout(err error) bool {
	be, ok := err.(*BridgeError)
	return ok && be.Kind == ErrTimeout
}

func errorKind(err error) string {
	return string(AsBridgeError(err).Kind)
}

// Partition splits aggregator results into successful quotes and
// per-bridge errors. Per the data model, errors is only meaningful when
// quotes is empty, but Partition always returns both so callers can
// decide.
func Partition(results []BridgeQuoteResult) (quotes []BridgeQuoteResult, errs []BridgeQuoteError) {
	for _, r := range results {
		if r.Quote != nil {
			quotes = append(quotes, r)
			continue
		}
		msg := "unknown error"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		errs = append(errs, BridgeQuoteError{Bridge: r.Bridge, Error: msg})
	}
	return quotes, errs
}
