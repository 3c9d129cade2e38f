package bridge

import (
	"fmt"
	"math"
	"time"
)

// RetryPolicy bounds how often a transient solve failure is retried and how
// long to wait in between. Delays are wall-clock: they pace the solver, not
// the simulation.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" toml:"base_delay"`
	Factor      float64       `yaml:"factor" toml:"factor"`
	MaxDelay    time.Duration `yaml:"max_delay" toml:"max_delay"`
}

// DefaultRetryPolicy returns 3 attempts with 1s, 2s backoff capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Factor: 2, MaxDelay: 30 * time.Second}
}

// WithDefaults fills zero fields from DefaultRetryPolicy.
func (p RetryPolicy) WithDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Factor == 0 {
		p.Factor = d.Factor
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = d.MaxDelay
	}
	return p
}

// Validate checks the policy after defaults are applied.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("retry delays must be non-negative, got base=%v max=%v", p.BaseDelay, p.MaxDelay)
	}
	if math.IsNaN(p.Factor) || math.IsInf(p.Factor, 0) || p.Factor < 1 {
		return fmt.Errorf("retry.factor must be a finite number >= 1, got %g", p.Factor)
	}
	return nil
}

// Delay returns the wait after the given failed attempt (1-based):
// BaseDelay * Factor^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt-1))
	if d > float64(p.MaxDelay) || math.IsInf(d, 1) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
