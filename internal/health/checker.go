// Package health runs periodic dependency checks for the server.
// Each check is a named ping; results feed /health and the
// whispie_health_check_status gauge.
package health

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/whispie/whispie/internal/infra/metrics"
)

// DefaultInterval is how often checks run when none is configured.
const DefaultInterval = 30 * time.Second

// checkTimeout bounds a single check.
const checkTimeout = 5 * time.Second

// Pinger is anything that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check defines a single health check.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
	// Optional marks a check whose failure degrades but does not fail the service.
	Optional bool
}

// PingCheck builds a Check from a Pinger.
func PingCheck(name string, p Pinger, optional bool) Check {
	return Check{Name: name, CheckFn: p.Ping, Optional: optional}
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Optional  bool      `json:"optional,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs checks on an interval and keeps the latest results.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time
}

// NewChecker creates a checker. A nil logger discards output.
func NewChecker(interval time.Duration, logger *log.Logger, checks ...Check) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Checker{
		checks:   checks,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run starts the check loop and blocks until ctx is done. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check once and records the results.
func (c *Checker) RunOnce(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, Optional: check.Optional, Healthy: true, CheckedAt: c.now()}

		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check.CheckFn(cctx)
		cancel()

		if err != nil {
			s.Healthy = false
			s.Error = err.Error()
			c.logger.Warn("health check failed", "check", check.Name, "err", err)
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		} else {
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy reports whether every required check passed on the last run.
// Before the first run there is nothing to report, so it returns true.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy && !s.Optional {
			return false
		}
	}
	return true
}

// Degraded reports whether any optional check failed on the last run.
func (c *Checker) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy && s.Optional {
			return true
		}
	}
	return false
}
