package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

const defaultHalfOpenMaxCalls = 3

// Settings configures a breaker.
type Settings struct {
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
	// IsFailure decides which errors count against the breaker. Nil counts
	// every non-nil error.
	IsFailure func(error) bool
}

// CircuitBreaker guards calls to one remote dependency.
type CircuitBreaker struct {
	name     string
	settings Settings
	logger   *logrus.Logger
	now      func() time.Time

	mu              sync.Mutex
	state           State
	failures        uint32
	halfOpenCalls   uint32
	successCount    uint32
	requestCount    uint64
	lastFailureTime time.Time
}

// New creates a breaker that opens after maxFailures consecutive failures.
func New(name string, maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	return NewWithSettings(name, Settings{MaxFailures: maxFailures, OpenTimeout: timeout}, logrus.New())
}

func NewWithSettings(name string, settings Settings, logger *logrus.Logger) *CircuitBreaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 1
	}
	if settings.HalfOpenMaxCalls == 0 {
		settings.HalfOpenMaxCalls = defaultHalfOpenMaxCalls
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		state:    StateClosed,
	}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return &CircuitBreakerError{Name: cb.name, State: StateOpen}
	}

	err := fn(ctx)
	if err != nil && cb.countsAsFailure(err) {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return err
}

func (cb *CircuitBreaker) countsAsFailure(err error) bool {
	if cb.settings.IsFailure == nil {
		return true
	}
	return cb.settings.IsFailure(err)
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requestCount++
	cb.advance()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.settings.HalfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return false
	}
}

// advance moves an open breaker to half-open once the timeout elapsed.
// Callers hold mu.
func (cb *CircuitBreaker) advance() {
	if cb.state != StateOpen || cb.now().Sub(cb.lastFailureTime) < cb.settings.OpenTimeout {
		return
	}
	cb.state = StateHalfOpen
	cb.halfOpenCalls = 0
	cb.successCount = 0
	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"state":           StateHalfOpen.String(),
	}).Info("Circuit breaker transitioned to half-open")
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.settings.HalfOpenMaxCalls {
			cb.reset()
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"state":           StateClosed.String(),
			}).Info("Circuit breaker closed after successful recovery")
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.settings.MaxFailures {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"failures":        cb.failures,
		"state":           StateOpen.String(),
	}).Warn("Circuit breaker opened due to failures")
}

func (cb *CircuitBreaker) reset() {
	cb.state = StateClosed
	cb.failures = 0
	cb.successCount = 0
	cb.halfOpenCalls = 0
}

// GetState returns the current state, accounting for an elapsed open timeout.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	return cb.state
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failures,
		Requests:        cb.requestCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	Failures        uint32    `json:"failures"`
	Requests        uint64    `json:"requests"`
	LastFailureTime time.Time `json:"last_failure_time"`
}

// Group lazily creates one breaker per key so a failing account does not
// block calls for the others.
type Group struct {
	prefix   string
	settings Settings
	logger   *logrus.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewGroup(prefix string, settings Settings, logger *logrus.Logger) *Group {
	return &Group{
		prefix:   prefix,
		settings: settings,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for key, creating it on first use.
func (g *Group) Get(key string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[key]
	if !ok {
		cb = NewWithSettings(g.prefix+":"+key, g.settings, g.logger)
		g.breakers[key] = cb
	}
	return cb
}

// Execute runs fn through the breaker for key.
func (g *Group) Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return g.Get(key).Execute(ctx, fn)
}

// Remove forgets the breaker for key.
func (g *Group) Remove(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.breakers, key)
}

// CircuitBreakerError represents an error when the circuit breaker is open
type CircuitBreakerError struct {
	Name  string
	State State
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsCircuitBreakerError checks if an error is a circuit breaker error
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
