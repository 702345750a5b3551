// Package circuitbreaker implements the circuit breaker pattern around
// HEC flushes. After enough consecutive delivery failures the breaker
// opens and flushes are rejected outright, giving the collector time to
// recover before probing it again.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker is open and rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker's position.
type State int

const (
	// Closed allows all calls through.
	Closed State = iota
	// Open rejects all calls.
	Open
	// HalfOpen allows a limited number of probe calls.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes the breaker. A FailureThreshold of zero disables it
// entirely: every call is allowed and failures are not tracked.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	HalfOpenMaxCalls int
}

// DefaultConfig returns the default breaker tuning.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker tracks consecutive flush outcomes and transitions
// between closed, open and half-open. Safe for concurrent use.
type CircuitBreaker struct {
	mu         sync.Mutex
	cfg        Config
	state      State
	failures   int
	successes  int
	probes     int
	lastChange time.Time
}

// New creates a breaker. Negative thresholds fall back to defaults;
// zero FailureThreshold means disabled.
func New(cfg Config) *CircuitBreaker {
	def := DefaultConfig()
	if cfg.FailureThreshold < 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return &CircuitBreaker{cfg: cfg, state: Closed, lastChange: time.Now()}
}

// Allow reports whether a call may proceed, reserving a probe slot when
// the breaker is half-open. Every Allow that returns nil must be paired
// with a Record call.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return nil
	case Open:
		if time.Since(cb.lastChange) < cb.cfg.Timeout {
			return ErrOpen
		}
		cb.toHalfOpen()
		fallthrough
	case HalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxCalls {
			return ErrOpen
		}
		cb.probes++
		return nil
	}
	return ErrOpen
}

// Record reports the outcome of a call previously admitted by Allow.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == HalfOpen && cb.probes > 0 {
		cb.probes--
	}

	if err == nil {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

// Call admits, runs and records fn in one step.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Record(err)
	return err
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case Closed:
		cb.failures = 0
	case HalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.state = Closed
			cb.failures = 0
			cb.successes = 0
			cb.lastChange = time.Now()
			slog.Info("circuit breaker closed, HEC recovered")
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	if cb.cfg.FailureThreshold == 0 {
		return
	}
	cb.failures++

	switch cb.state {
	case Closed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.toOpen()
		}
	case HalfOpen:
		// One failed probe reopens the circuit.
		cb.toOpen()
	}
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = Open
	cb.successes = 0
	cb.probes = 0
	cb.lastChange = time.Now()
	slog.Warn("circuit breaker opened",
		"consecutive_failures", cb.failures,
		"threshold", cb.cfg.FailureThreshold)
}

func (cb *CircuitBreaker) toHalfOpen() {
	cb.state = HalfOpen
	cb.failures = 0
	cb.successes = 0
	cb.probes = 0
	cb.lastChange = time.Now()
	slog.Info("circuit breaker half-open, probing HEC")
}

// GetState returns the breaker's current position.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = Closed
	cb.failures = 0
	cb.successes = 0
	cb.probes = 0
	cb.lastChange = time.Now()
}
