// Package retry implements the generic retry/backoff policy wrapped around
// every external call in the pipeline.
package retry

import (
	"context"
	"math"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMultiplier = 2.0
	// Jitter is uniform in [0, jitterFraction).
	jitterFraction = 0.25
)

var serverErrorPattern = regexp.MustCompile(`\b5\d\d\b`)

// Policy configures one retryable call. It is call-local and never persisted.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the backoff base before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff factor (defaults to 2).
	Multiplier float64
	// Classify decides whether an error on the given attempt is retryable.
	// Attempt 1 always retries regardless of the predicate. Nil uses
	// DefaultClassify.
	Classify func(err error, attempt int) bool
	// Sleep performs the backoff wait. Nil uses a context-aware sleep.
	// Overridable in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns a value in [0, 1) scaled by jitterFraction.
	// Overridable in tests.
	Jitter func() float64
}

// CriticalProfile is used for the synthesis call, the step the whole run
// depends on.
func CriticalProfile() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   defaultMultiplier,
	}
}

// StandardProfile is used for secondary providers (image, video, avatar).
func StandardProfile() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   defaultMultiplier,
	}
}

// DefaultClassify classifies errors by message content: rate limits, server
// errors and network/timeout failures are retryable, everything else
// (including non-429 4xx) is fatal.
func DefaultClassify(err error, _ int) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"):
		return true
	case serverErrorPattern.MatchString(msg),
		strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "gateway timeout"):
		return true
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "eof"):
		return true
	}
	return false
}

// Do executes op under the policy. On failure it consults the retryability
// predicate; if retryable and attempts remain, it sleeps the backoff delay
// and retries, otherwise it returns the last error unchanged. Callers must
// not assume any wrapper type around the operation's own error.
func (p Policy) Do(ctx context.Context, logger *zap.Logger, op string, fn func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	classify := p.Classify
	if classify == nil {
		classify = DefaultClassify
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					zap.String("op", op), zap.Int("attempt", attempt))
			}
			return nil
		}

		// Attempt 1 always retries; later attempts go through the predicate.
		retryable := attempt == 1 || classify(lastErr, attempt)
		if !retryable || attempt == attempts {
			logger.Warn("Operation failed",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Bool("retryable", retryable),
				zap.Error(lastErr))
			return lastErr
		}

		delay := p.delayFor(attempt)
		logger.Warn("Operation failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		if err := p.sleep(ctx, delay); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// delayFor computes min(initial * multiplier^(attempt-1) * (1 + jitter), max).
func (p Policy) delayFor(attempt int) time.Duration {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = defaultMultiplier
	}
	jitter := p.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	delay *= 1 + jitterFraction*jitter()
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
