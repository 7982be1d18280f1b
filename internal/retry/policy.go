// Package retry wraps calls to external services with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Ananth-NQI/kb-request-bot/internal/apperr"
	"github.com/Ananth-NQI/kb-request-bot/internal/validation"
)

// Config defines retry behaviour.
type Config struct {
	MaxAttempts int           // including the first attempt
	BaseDelay   time.Duration // delay after the first failure, doubled after each further one
	MaxDelay    time.Duration // 0 means uncapped
}

// DefaultConfig retries three times starting at one second.
var DefaultConfig = Config{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
}

// Classifier decides whether a failed attempt may be retried.
type Classifier func(error) bool

// ShouldRetry is the default classifier. Client-input failures (4xx other than
// 429, validation errors) and caller cancellation are final.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if validation.IsValidationError(err) || apperr.IsClientError(err) {
		return false
	}
	return true
}

// Observer receives one callback per attempt. Outcome is "success", "retry",
// "non_retryable" or "exhausted".
type Observer interface {
	ObserveAttempt(service string, attempt int, outcome string)
}

// Policy is a reusable retry policy.
type Policy struct {
	Config     Config
	Classifier Classifier
	Logger     *slog.Logger
	Observer   Observer

	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy creates a policy with the default classifier and a real sleep.
func NewPolicy(config Config, logger *slog.Logger) *Policy {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		Config:     config,
		Classifier: ShouldRetry,
		Logger:     logger,
		Sleep:      sleepContext,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := time.Duration(float64(p.Config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if p.Config.MaxDelay > 0 && delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}
	return delay
}

// Call runs op until it succeeds, fails with a non-retryable error, or the
// policy's attempts are used up, in which case a *apperr.ServiceUnavailableError
// wrapping the last failure is returned.
func Call[T any](ctx context.Context, p *Policy, service string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := p.Config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	classify := p.Classifier
	if classify == nil {
		classify = ShouldRetry
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			p.observe(service, attempt, "success")
			return v, nil
		}

		retryable := classify(err)
		logger.Error("external call failed",
			"service", service,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"retryable", retryable,
			"status", apperr.StatusCode(err),
			"error", err.Error(),
		)

		if !retryable {
			p.observe(service, attempt, "non_retryable")
			return zero, err
		}
		if attempt >= maxAttempts {
			p.observe(service, attempt, "exhausted")
			return zero, &apperr.ServiceUnavailableError{Service: service, Attempts: attempt, Err: err}
		}

		p.observe(service, attempt, "retry")
		sleep := p.Sleep
		if sleep == nil {
			sleep = sleepContext
		}
		if serr := sleep(ctx, p.Delay(attempt)); serr != nil {
			return zero, fmt.Errorf("%s: retry aborted after %d attempts: %w", service, attempt, serr)
		}
	}
}

func (p *Policy) observe(service string, attempt int, outcome string) {
	if p.Observer != nil {
		p.Observer.ObserveAttempt(service, attempt, outcome)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
