// Package circuit provides a circuit breaker that stops calling an LLM
// backend after repeated failures and probes it again after a cool-down.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"codeqa/pkg/logx"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states.
const (
	Closed   State = iota // normal operation
	Open                  // failing, requests rejected
	HalfOpen              // probing whether the backend recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines configuration for circuit breaker behavior.
type Config struct {
	FailureThreshold int           `json:"failure_threshold"` // consecutive failures before opening
	SuccessThreshold int           `json:"success_threshold"` // half-open successes before closing
	Timeout          time.Duration `json:"timeout"`           // open duration before a probe
}

// DefaultConfig provides reasonable defaults for circuit breaker behavior.
//
//nolint:gochecknoglobals // sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	Timeout:          30 * time.Second,
}

// Error is returned when the circuit rejects a request.
type Error struct {
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Breaker is the circuit breaker contract used by the middleware.
type Breaker interface {
	Allow() bool
	Record(success bool)
	GetState() State
	Reset()
}

//nolint:govet // logical field grouping preferred over memory alignment
type breaker struct {
	config          Config
	name            string
	logger          *logx.Logger
	now             func() time.Time
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// New creates a circuit breaker. name identifies the guarded backend in logs.
func New(name string, config Config) Breaker {
	return &breaker{
		config: config,
		name:   name,
		logger: logx.NewLogger("circuit"),
		now:    time.Now,
		state:  Closed,
	}
}

// Allow reports whether a request may proceed, moving Open to HalfOpen once
// the timeout has elapsed.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if b.now().Sub(b.lastFailureTime) >= b.config.Timeout {
			b.transition(HalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// Record records the outcome of a request.
func (b *breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failureCount = 0
		if b.state == HalfOpen {
			b.successCount++
			if b.successCount >= b.config.SuccessThreshold {
				b.transition(Closed)
			}
		}
		return
	}

	b.failureCount++
	b.lastFailureTime = b.now()
	switch b.state {
	case Closed:
		if b.failureCount >= b.config.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		b.transition(Open)
	}
}

// GetState returns the current state.
func (b *breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed.
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Closed)
}

// transition must be called with mu held.
func (b *breaker) transition(to State) {
	if b.state != to {
		b.logger.Info("%s circuit %s -> %s", b.name, b.state, to)
	}
	b.state = to
	b.successCount = 0
	if to == Closed {
		b.failureCount = 0
	}
}
