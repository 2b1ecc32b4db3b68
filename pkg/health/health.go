package health

import (
	"context"
	"fmt"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Config controls how readiness is awaited
type Config struct {
	// Interval is the time between health checks
	Interval time.Duration

	// Timeout bounds the whole wait
	Timeout time.Duration

	// StartPeriod is the grace period before the first check
	StartPeriod time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		Timeout:     60 * time.Second,
		StartPeriod: 0,
	}
}

// Status tracks consecutive results of a checker
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastResult           Result
	Healthy              bool
}

// Update records a new health check result
func (s *Status) Update(result Result) {
	s.LastResult = result
	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}
	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
	s.Healthy = false
}

// WaitReady polls checker until it reports healthy or the timeout expires.
// The returned status holds the last result either way.
func WaitReady(ctx context.Context, checker Checker, cfg Config) (*Status, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	status := &Status{}

	if cfg.StartPeriod > 0 {
		select {
		case <-ctx.Done():
			return status, fmt.Errorf("not ready: %w", ctx.Err())
		case <-time.After(cfg.StartPeriod):
		}
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		status.Update(checker.Check(ctx))
		if status.Healthy {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, fmt.Errorf("not ready after %d checks: %s", status.ConsecutiveFailures, status.LastResult.Message)
		case <-ticker.C:
		}
	}
}
