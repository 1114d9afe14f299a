package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/metrics"
)

// CircuitOpenError is returned without invoking the wrapped call while the
// breaker is open, or while its single half-open trial request is in flight.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: %s (retry after %s)", apperrors.ErrCircuitOpen.Code, e.Name, e.RetryAfter)
}

// Is lets errors.Is(err, apperrors.ErrCircuitOpen) match.
func (e *CircuitOpenError) Is(target error) bool {
	return target == apperrors.ErrCircuitOpen
}

func IsCircuitOpen(err error) bool {
	var openErr *CircuitOpenError
	return errors.As(err, &openErr)
}

// Config defines circuit breaker configuration
type Config struct {
	Name         string
	Threshold    uint32
	ResetTimeout time.Duration
	// IsFailure decides which errors count. Defaults to errors.IsRetryable.
	IsFailure     func(err error) bool
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		Threshold:    5,
		ResetTimeout: 30 * time.Second,
	}
}

// Wrapper wraps a function with circuit breaker logic
type Wrapper struct {
	cb           *gobreaker.CircuitBreaker
	resetTimeout time.Duration

	mu       sync.Mutex
	openedAt time.Time
}

const defaultResetTimeout = 60 * time.Second

// NewWrapper creates a new circuit breaker wrapper
func NewWrapper(cfg Config) *Wrapper {
	if cfg.Threshold == 0 {
		cfg.Threshold = 5
	}
	isFailure := cfg.IsFailure
	if isFailure == nil {
		isFailure = apperrors.IsRetryable
	}

	// Same fallback gobreaker applies to a zero Timeout.
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}

	w := &Wrapper{resetTimeout: cfg.ResetTimeout}

	threshold := cfg.Threshold
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isFailure(err)
		},
	}

	// Runs under gobreaker's lock: must not call back into cb.
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		if to == gobreaker.StateOpen {
			w.mu.Lock()
			w.openedAt = time.Now()
			w.mu.Unlock()
		}
		updateCircuitBreakerMetrics(name, to)
		metrics.CircuitBreakerTransitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(name, from, to)
		}
	}

	w.cb = gobreaker.NewCircuitBreaker(settings)
	updateCircuitBreakerMetrics(cfg.Name, w.cb.State())

	return w
}

// Execute runs fn under breaker protection. Only errors classified as
// failures move the breaker; everything else passes through untouched.
func (w *Wrapper) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := w.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CircuitBreakerRejectionsTotal.WithLabelValues(w.cb.Name()).Inc()
		return &CircuitOpenError{Name: w.cb.Name(), RetryAfter: w.RetryAfter()}
	}
	return err
}

// RetryAfter reports the time left until the breaker admits a half-open trial request.
func (w *Wrapper) RetryAfter() time.Duration {
	if w.cb.State() != gobreaker.StateOpen {
		return 0
	}
	w.mu.Lock()
	openedAt := w.openedAt
	w.mu.Unlock()

	remaining := w.resetTimeout - time.Since(openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// State returns the current state of the circuit breaker
func (w *Wrapper) State() gobreaker.State {
	return w.cb.State()
}

// Counts returns the current counts of the circuit breaker
func (w *Wrapper) Counts() gobreaker.Counts {
	return w.cb.Counts()
}

// Name returns the name of the circuit breaker
func (w *Wrapper) Name() string {
	return w.cb.Name()
}

func (w *Wrapper) IsOpen() bool {
	return w.cb.State() == gobreaker.StateOpen
}

func (w *Wrapper) IsHalfOpen() bool {
	return w.cb.State() == gobreaker.StateHalfOpen
}

func (w *Wrapper) IsClosed() bool {
	return w.cb.State() == gobreaker.StateClosed
}

func updateCircuitBreakerMetrics(name string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateHalfOpen:
		stateValue = 1
	case gobreaker.StateOpen:
		stateValue = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue)
}
