package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Status encodes the outcome of a health probe or of a whole report.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

const defaultProbeTimeout = 2 * time.Second

// Probe checks one dependency. A nil error means the dependency is usable.
type Probe func(ctx context.Context) error

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report aggregates probe results for a liveness or readiness evaluation.
type Report struct {
	Status    Status        `json:"status"`
	Checks    []ProbeResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Healthy reports whether the service should keep receiving traffic. Degraded still serves.
func (r Report) Healthy() bool {
	return r.Status != StatusDown
}

type registeredProbe struct {
	name     string
	probe    Probe
	optional bool
}

// Health coordinates liveness and readiness probes.
type Health struct {
	timeout time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	live  []registeredProbe
	ready []registeredProbe
}

// NewHealth constructs an empty prober. Each probe runs under timeout.
func NewHealth(timeout time.Duration) *Health {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Health{timeout: timeout, now: time.Now}
}

// AddLiveness registers a probe that decides whether the process should be restarted.
func (h *Health) AddLiveness(name string, probe Probe) {
	h.add(&h.live, registeredProbe{name: name, probe: probe})
}

// AddReadiness registers a probe the service cannot work without.
func (h *Health) AddReadiness(name string, probe Probe) {
	h.add(&h.ready, registeredProbe{name: name, probe: probe})
}

// AddOptional registers a readiness probe whose failure only degrades the service.
func (h *Health) AddOptional(name string, probe Probe) {
	h.add(&h.ready, registeredProbe{name: name, probe: probe, optional: true})
}

func (h *Health) add(list *[]registeredProbe, p registeredProbe) {
	if p.name == "" || p.probe == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	*list = append(*list, p)
}

// Live runs the liveness probes.
func (h *Health) Live(ctx context.Context) Report {
	h.mu.RLock()
	probes := append([]registeredProbe(nil), h.live...)
	h.mu.RUnlock()
	return h.evaluate(ctx, probes)
}

// Ready runs the readiness probes.
func (h *Health) Ready(ctx context.Context) Report {
	h.mu.RLock()
	probes := append([]registeredProbe(nil), h.ready...)
	h.mu.RUnlock()
	return h.evaluate(ctx, probes)
}

func (h *Health) evaluate(ctx context.Context, probes []registeredProbe) Report {
	report := Report{
		Status:    StatusUp,
		Checks:    make([]ProbeResult, 0, len(probes)),
		CheckedAt: h.now().UTC(),
	}

	for _, p := range probes {
		result := h.run(ctx, p)
		report.Checks = append(report.Checks, result)

		switch result.Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status != StatusDown {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func (h *Health) run(ctx context.Context, p registeredProbe) (result ProbeResult) {
	if ctx == nil {
		ctx = context.Background()
	}
	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = resultFromError(p, fmt.Errorf("panic: %v", rec))
		}
		result.Component = p.name
		result.Duration = time.Since(start)
	}()

	return resultFromError(p, p.probe(probeCtx))
}

func resultFromError(p registeredProbe, err error) ProbeResult {
	if err == nil {
		return ProbeResult{Status: StatusUp}
	}

	status := StatusDown
	if p.optional || errors.Is(err, context.DeadlineExceeded) {
		status = StatusDegraded
	}
	return ProbeResult{Status: status, Details: err.Error()}
}

// DatabaseProbe pings the database behind db.
func DatabaseProbe(db *gorm.DB) Probe {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database not configured")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// Pinger is implemented by clients that can verify their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe adapts a Pinger such as the Redis cache client.
func PingProbe(p Pinger) Probe {
	return func(ctx context.Context) error {
		if p == nil {
			return errors.New("client not configured")
		}
		return p.Ping(ctx)
	}
}
