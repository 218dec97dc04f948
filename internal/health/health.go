// Package health aggregates readiness probes for the server's backing
// services (Postgres, Redis) behind a single registry.
package health

import (
	"context"
	"sync"
	"time"
)

// checkTimeout bounds a single probe so one hung dependency cannot stall
// the whole /health response.
const checkTimeout = 2 * time.Second

// Status is the outcome of one probe.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes one subsystem. It must respect ctx cancellation.
type Checker func(ctx context.Context) Status

// Registry runs named probes on demand.
type Registry struct {
	mu     sync.RWMutex
	checks []namedCheck
}

type namedCheck struct {
	name string
	fn   Checker
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a probe. Results keep registration order.
func (r *Registry) Register(name string, fn Checker) {
	r.mu.Lock()
	r.checks = append(r.checks, namedCheck{name: name, fn: fn})
	r.mu.Unlock()
}

// CheckAll runs every probe concurrently, each under its own timeout, and
// reports the aggregate plus per-subsystem results.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	checks := make([]namedCheck, len(r.checks))
	copy(checks, r.checks)
	r.mu.RUnlock()

	statuses := make([]Status, len(checks))
	var wg sync.WaitGroup
	for i, nc := range checks {
		wg.Add(1)
		go func(i int, nc namedCheck) {
			defer wg.Done()
			statuses[i] = runOne(ctx, nc)
		}(i, nc)
	}
	wg.Wait()

	healthy := true
	for _, s := range statuses {
		if !s.Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}

func runOne(ctx context.Context, nc namedCheck) Status {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	done := make(chan Status, 1)
	go func() { done <- nc.fn(ctx) }()

	select {
	case s := <-done:
		return s
	case <-ctx.Done():
		return Status{Name: nc.name, Healthy: false, Detail: "check timed out"}
	}
}
