package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// RetryConfig configures retry behaviour for external requests.
type RetryConfig struct {
	// MaxAttempts includes the first try. Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry. Default: 500ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries. Default: 10s
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry. Default: 2.0
	Multiplier float64

	// Jitter is a fraction of the delay, 0.1 means ±10%.
	Jitter float64

	// RetryableErrors limits retries to matching errors. When empty every
	// error except context cancellation is retried.
	RetryableErrors []error

	// OnRetry is called before each retry.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns exponential backoff suitable for interactive
// requests.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

func (c *RetryConfig) delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		spread := d * c.Jitter
		d = d - spread + rand.Float64()*2*spread
	}
	return time.Duration(d)
}

func (c *RetryConfig) retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	if len(c.RetryableErrors) == 0 {
		return true
	}
	for _, target := range c.RetryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// PermanentError marks a failure that retrying cannot fix, such as a 404.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Retry gives up immediately.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// RetryResult describes a finished retry loop.
type RetryResult struct {
	Attempts      int
	TotalDuration time.Duration
	Errors        []error
	Success       bool
}

// LastError returns the final error, or nil on success.
func (r *RetryResult) LastError() error {
	if r.Success || len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[len(r.Errors)-1]
}

// AllErrors combines every attempt's error.
func (r *RetryResult) AllErrors() error {
	if len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		msgs[i] = fmt.Sprintf("attempt %d: %v", i+1, err)
	}
	return fmt.Errorf("all attempts failed: %s", strings.Join(msgs, "; "))
}

// Retry runs fn until it succeeds, the error is not retryable, the attempts
// run out or ctx is done.
func Retry[T any](ctx context.Context, cfg *RetryConfig, fn func(ctx context.Context) (T, error)) (T, *RetryResult) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	res := &RetryResult{}
	start := time.Now()
	var zero T
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt
		v, err := fn(ctx)
		if err == nil {
			res.Success = true
			res.TotalDuration = time.Since(start)
			return v, res
		}
		res.Errors = append(res.Errors, err)
		if attempt >= cfg.MaxAttempts || !cfg.retryable(err) {
			break
		}
		d := cfg.delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, d)
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Errors = append(res.Errors, ctx.Err())
			res.TotalDuration = time.Since(start)
			return zero, res
		case <-timer.C:
		}
	}
	res.TotalDuration = time.Since(start)
	return zero, res
}

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a failing service for a cool-down period.
type CircuitBreaker struct {
	mu           sync.Mutex
	threshold    int
	resetTimeout time.Duration
	failures     int
	openedAt     time.Time
	now          func() time.Time
}

// NewCircuitBreaker opens after threshold consecutive failures and allows a
// trial call once resetTimeout has passed.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, resetTimeout: resetTimeout, now: time.Now}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.failures >= cb.threshold && cb.now().Sub(cb.openedAt) < cb.resetTimeout {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.openedAt = cb.now()
		}
		return err
	}
	cb.failures = 0
	return nil
}
