package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/certledger"
)

// ErrChainBroken is reported by the ledger probe when the integrity walk fails.
var ErrChainBroken = errors.New("certificate chain integrity check failed")

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe is one named dependency check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// ProbeStatus is the last known state of a probe.
type ProbeStatus struct {
	Healthy   bool      `json:"healthy"`
	Failures  int       `json:"consecutiveFailures"`
	LastError string    `json:"lastError,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Report is a snapshot of all probes.
type Report struct {
	Healthy bool                   `json:"healthy"`
	Probes  map[string]ProbeStatus `json:"probes"`
}

// TransitionFunc is called when a probe crosses the failure threshold or
// recovers from it.
type TransitionFunc func(ctx context.Context, probe string, healthy bool, err error)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// Checker runs periodic dependency and ledger integrity probes.
type Checker struct {
	probes       []Probe
	mu           sync.Mutex
	status       map[string]ProbeStatus
	cfg          Config
	onTransition TransitionFunc
	onMetrics    MetricsRecordFunc
	logger       *zap.Logger
}

// New creates a new Checker. Probes start out healthy.
func New(probes []Probe, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	status := make(map[string]ProbeStatus, len(probes))
	for _, p := range probes {
		status[p.Name] = ProbeStatus{Healthy: true}
	}
	return &Checker{probes: probes, status: status, cfg: cfg, logger: logger}
}

// SetTransitionHook configures the degraded/recovered callback.
func (h *Checker) SetTransitionHook(fn TransitionFunc) {
	h.onTransition = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until ctx is cancelled.
func (h *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	h.CheckAll(ctx)
	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs every probe concurrently and waits for them to finish.
func (h *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range h.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			h.run(ctx, p)
		}(p)
	}
	wg.Wait()
}

func (h *Checker) run(ctx context.Context, p Probe) {
	pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	err := p.Check(pctx)
	cancel()

	if h.onMetrics != nil {
		h.onMetrics(err == nil)
	}

	h.mu.Lock()
	prev := h.status[p.Name]
	next := ProbeStatus{CheckedAt: time.Now().UTC()}
	if err == nil {
		next.Healthy = true
	} else {
		next.Failures = prev.Failures + 1
		next.LastError = err.Error()
		next.Healthy = next.Failures < h.cfg.FailThreshold
	}
	h.status[p.Name] = next
	h.mu.Unlock()

	switch {
	case prev.Healthy && !next.Healthy:
		h.logger.Warn("health: degraded",
			zap.String("probe", p.Name),
			zap.Int("fail_count", next.Failures),
			zap.Error(err),
		)
		if h.onTransition != nil {
			h.onTransition(ctx, p.Name, false, err)
		}
	case !prev.Healthy && next.Healthy:
		h.logger.Info("health: recovered", zap.String("probe", p.Name))
		if h.onTransition != nil {
			h.onTransition(ctx, p.Name, true, nil)
		}
	case err != nil:
		h.logger.Debug("health: probe failed", zap.String("probe", p.Name), zap.Error(err))
	}
}

// Snapshot returns the current state of every probe.
func (h *Checker) Snapshot() Report {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := Report{Healthy: true, Probes: make(map[string]ProbeStatus, len(h.status))}
	for name, s := range h.status {
		r.Probes[name] = s
		if !s.Healthy {
			r.Healthy = false
		}
	}
	return r
}

// integrityVerifier is satisfied by certledger.Ledger.
type integrityVerifier interface {
	VerifyIntegrity(ctx context.Context) (*certledger.IntegrityReport, error)
}

// LedgerProbe walks the certificate chain and fails when it is broken.
func LedgerProbe(l integrityVerifier) Probe {
	return Probe{
		Name: "ledger",
		Check: func(ctx context.Context) error {
			report, err := l.VerifyIntegrity(ctx)
			if err != nil {
				return err
			}
			if !report.IsValid {
				return fmt.Errorf("%w: %d failure(s)", ErrChainBroken, len(report.Failures))
			}
			return nil
		},
	}
}

// PingProbe wraps a connectivity check such as pgxpool.Pool.Ping.
func PingProbe(name string, ping func(ctx context.Context) error) Probe {
	return Probe{Name: name, Check: ping}
}
