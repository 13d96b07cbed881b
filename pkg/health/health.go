// Package health pings the dependencies of a service in parallel and serves
// the result on liveness and readiness endpoints. A failing critical
// dependency (the store) makes the instance unready; a failing optional one
// (the result cache) only marks it degraded.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Ping probes one dependency.
type Ping func(ctx context.Context) error

type Dependency struct {
	Status    Status `json:"status"`
	Critical  bool   `json:"critical"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type Report struct {
	Status       Status                `json:"status"`
	Dependencies map[string]Dependency `json:"dependencies"`
	CheckedAt    time.Time             `json:"checked_at"`
}

type probe struct {
	ping     Ping
	critical bool
}

// Checker holds the registered probes. Each probe gets its own timeout.
type Checker struct {
	mu      sync.RWMutex
	probes  map[string]probe
	timeout time.Duration
}

func NewChecker() *Checker {
	return &Checker{probes: make(map[string]probe), timeout: 2 * time.Second}
}

// Register adds or replaces the probe for name.
func (c *Checker) Register(name string, ping Ping, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe{ping: ping, critical: critical}
}

// Run pings every dependency concurrently.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	probes := make(map[string]probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.RUnlock()

	report := Report{
		Status:       StatusUp,
		Dependencies: make(map[string]Dependency, len(probes)),
		CheckedAt:    time.Now().UTC(),
	}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, p := range probes {
		wg.Go(func() {
			dep := c.ping(ctx, p)
			mu.Lock()
			report.Dependencies[name] = dep
			mu.Unlock()
		})
	}
	wg.Wait()

	for _, dep := range report.Dependencies {
		switch {
		case dep.Status == StatusDown:
			report.Status = StatusDown
		case dep.Status == StatusDegraded && report.Status == StatusUp:
			report.Status = StatusDegraded
		}
	}
	return report
}

func (c *Checker) ping(ctx context.Context, p probe) Dependency {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	err := p.ping(ctx)
	dep := Dependency{Status: StatusUp, Critical: p.critical, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		dep.Error = err.Error()
		dep.Status = StatusDegraded
		if p.critical {
			dep.Status = StatusDown
		}
	}
	return dep
}

// LiveHandler reports that the process is serving; it pings nothing.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]Status{"status": StatusUp})
	}
}

// ReadyHandler answers 503 only when a critical dependency is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
