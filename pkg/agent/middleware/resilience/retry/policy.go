// Package retry provides retry logic with exponential backoff for LLM calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"codeqa/pkg/agent/llmerrors"
	"codeqa/pkg/agent/middleware/resilience/circuit"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           `json:"max_attempts"`   // including the initial attempt
	InitialDelay  time.Duration `json:"initial_delay"`  // delay before the first retry
	MaxDelay      time.Duration `json:"max_delay"`      // cap between retries
	BackoffFactor float64       `json:"backoff_factor"` // multiplier per attempt
	Jitter        bool          `json:"jitter"`         // +/-10% randomization
}

// DefaultConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default classifier. It defers to the llmerrors
// classification, never retries an open circuit or a canceled request, and
// does retry per-attempt deadlines since the parent context may still be live.
func ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var circuitErr *circuit.Error
	if errors.As(err, &circuitErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return llmerrors.IsRetryable(err)
}

// Policy encapsulates retry configuration and logic.
//
//nolint:govet // logical grouping preferred
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a retry policy. A nil classifier uses ShouldRetry.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// CalculateDelay computes the wait before the given attempt (1-based).
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}
	if p.Config.Jitter && delay > 0 {
		//nolint:gosec // jitter does not need a cryptographic source
		factor := 0.9 + rand.Float64()*0.2
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
