// Package retry runs operations with bounded exponential-backoff retry,
// consulting the error classifier to decide what is worth retrying.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/vietddude/docsync/internal/core/clock"
	"github.com/vietddude/docsync/internal/resilience/classify"
	"github.com/vietddude/docsync/internal/resilience/metrics"
)

// Policy defines retry behavior for a single call.
type Policy struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	// RetryableCodes overrides the classifier's verdict when non-empty: only
	// errors whose code is in the set are retried.
	RetryableCodes map[string]bool `yaml:"retryable_codes"`
	// OnRetry is called before each backoff sleep with the 1-based number of
	// the attempt that just failed.
	OnRetry func(attempt int, err error) `yaml:"-"`
}

// DefaultPolicy provides sensible defaults: 1s, 2s, 4s, ... capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

// WithDefaults fills zero fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = d.BackoffFactor
	}
	return p
}

// Delay returns the backoff after the given 1-based failed attempt:
// min(BaseDelay * BackoffFactor^(attempt-1), MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if delay > float64(p.MaxDelay) || math.IsInf(delay, 0) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Attempts returns how many attempts produced err, or 0 if unknown.
func Attempts(err error) int {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return ex.Attempts
	}
	return 0
}

// Executor runs operations under a retry policy.
type Executor struct {
	classifier *classify.Classifier
	clock      clock.Clock
	defaults   Policy
	log        *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithClassifier sets the classifier consulted on failure.
func WithClassifier(c *classify.Classifier) Option {
	return func(e *Executor) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithClock sets the clock used for backoff sleeps.
func WithClock(c clock.Clock) Option {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithDefaultPolicy sets the policy used when a call passes none.
func WithDefaultPolicy(p Policy) Option {
	return func(e *Executor) { e.defaults = p.WithDefaults() }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		classifier: classify.Default,
		clock:      clock.New(),
		defaults:   DefaultPolicy(),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs op until it succeeds, fails with a non-retryable error, or uses up
// the policy's attempts. A nil policy uses the executor defaults. Non-retryable
// errors are returned unchanged; exhaustion returns *ExhaustedError wrapping
// the last error.
func (e *Executor) Do(
	ctx context.Context,
	label string,
	policy *Policy,
	op func(ctx context.Context) error,
) error {
	p := e.defaults
	if policy != nil {
		p = policy.WithDefaults()
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				e.log.Debug("Operation succeeded after retry", "operation", label, "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if !e.retryable(err, label, p) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		metrics.RetriesTotal.WithLabelValues(label).Inc()
		e.log.Warn("Retrying operation",
			"operation", label,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err,
		)

		if err := e.clock.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: retry interrupted after %d attempts: %w", label, attempt, errors.Join(err, lastErr))
		}
	}

	metrics.RetryExhausted.WithLabelValues(label).Inc()
	return &ExhaustedError{Operation: label, Attempts: p.MaxAttempts, Err: lastErr}
}

func (e *Executor) retryable(err error, label string, p Policy) bool {
	details := e.classifier.Classify(err, classify.Context{Operation: label})
	if details.Catastrophic {
		return false
	}
	if len(p.RetryableCodes) > 0 {
		return p.RetryableCodes[details.Code]
	}
	return details.Retryable
}

// Value is Do for operations that produce a result.
func Value[T any](
	ctx context.Context,
	e *Executor,
	label string,
	policy *Policy,
	op func(ctx context.Context) (T, error),
) (T, error) {
	var result T
	err := e.Do(ctx, label, policy, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
