package proxy

import (
	"context"
	"sync"
	"time"

	"github.com/nulpointcorp/bridgequote/internal/metrics"
)

const healthProbeInterval = 30 * time.Second
const healthProbeTimeout = 5 * time.Second

// componentStatus holds the last known health result for one component.
type componentStatus struct {
	mu     sync.RWMutex
	status string // "ok" | "degraded" | "down"
}

func (s *componentStatus) set(v string) {
	s.mu.Lock()
	s.status = v
	s.mu.Unlock()
}

func (s *componentStatus) get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == "" {
		return "unknown"
	}
	return s.status
}

// HealthChecker runs background probes and exposes the latest results.
// Bridge adapters have no dedicated health-check endpoint of their own
// (unlike the teacher's Provider.HealthCheck), so they are reported as
// "configured" rather than actively probed; the cache and the
// ClickHouse-backed security repository are the two dependencies
// actually worth polling.
type HealthChecker struct {
	bridgeNames   []string
	cacheReady    func() bool
	securityReady func() bool
	baseCtx       context.Context
	metrics       *metrics.Registry

	cacheStatus    componentStatus
	securityStatus componentStatus

	startTime time.Time
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewHealthChecker creates a HealthChecker and immediately starts background probes.
func NewHealthChecker(
	ctx context.Context,
	bridgeNames []string,
	cacheReady func() bool,
	securityReady func() bool,
	met *metrics.Registry,
) *HealthChecker {
	if ctx == nil {
		panic("healthchecker: context must not be nil")
	}
	hc := &HealthChecker{
		bridgeNames:   bridgeNames,
		cacheReady:    cacheReady,
		securityReady: securityReady,
		startTime:     time.Now(),
		done:          make(chan struct{}),
		baseCtx:       ctx,
		metrics:       met,
	}

	// Run first probe synchronously so health is not "unknown" immediately.
	hc.probe()

	hc.wg.Add(1)
	go hc.run()

	return hc
}

// HealthSnapshot returns the current health state for all components.
type HealthSnapshot struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Bridges       map[string]string `json:"bridges"`
	Cache         string            `json:"cache"`
	Security      string            `json:"security"`
}

// Snapshot builds a snapshot from the latest probe results.
func (hc *HealthChecker) Snapshot() HealthSnapshot {
	overall := "ok"

	bridges := make(map[string]string, len(hc.bridgeNames))
	for _, name := range hc.bridgeNames {
		bridges[name] = "configured"
	}

	cache := hc.cacheStatus.get()
	sec := hc.securityStatus.get()

	if cache == "degraded" || sec == "down" {
		overall = "degraded"
	}

	return HealthSnapshot{
		Status:        overall,
		UptimeSeconds: int64(time.Since(hc.startTime).Seconds()),
		Bridges:       bridges,
		Cache:         cache,
		Security:      sec,
	}
}

// ReadinessOK returns true when the security repository is reachable
// (used by GET /readiness for Kubernetes probes).
func (hc *HealthChecker) ReadinessOK() bool {
	return hc.securityStatus.get() == "ok"
}

// Close stops the background probe goroutine.
func (hc *HealthChecker) Close() {
	close(hc.done)
	hc.wg.Wait()
}

func (hc *HealthChecker) run() {
	defer hc.wg.Done()
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hc.probe()
		case <-hc.done:
			return
		}
	}
}

// runProbe calls ready in its own goroutine and reports ok=false if it
// doesn't return within healthProbeTimeout, so a stalled dependency (a
// Redis PING stuck on a dead connection) degrades the snapshot instead
// of blocking the next probe cycle forever. A nil ready means "not
// configured" and is always ok.
func runProbe(ready func() bool) bool {
	if ready == nil {
		return true
	}
	result := make(chan bool, 1)
	go func() { result <- ready() }()
	select {
	case ok := <-result:
		return ok
	case <-time.After(healthProbeTimeout):
		return false
	}
}

func (hc *HealthChecker) probe() {
	var wg sync.WaitGroup

	// Cache probe — nil probe means "not configured" → ok.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if runProbe(hc.cacheReady) {
			hc.cacheStatus.set("ok")
		} else {
			hc.cacheStatus.set("degraded")
		}
		if hc.metrics != nil {
			hc.metrics.SetDependencyHealth("cache", hc.cacheStatus.get() == "ok")
		}
	}()

	// Security repository probe — nil probe means "not configured" → ok.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if runProbe(hc.securityReady) {
			hc.securityStatus.set("ok")
		} else {
			hc.securityStatus.set("down")
		}
		if hc.metrics != nil {
			hc.metrics.SetDependencyHealth("security", hc.securityStatus.get() == "ok")
		}
	}()

	wg.Wait()
}
