// Package retry runs idempotent operations with exponential backoff.
package retry

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/errors"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the wait before the first retry; each later wait doubles.
	InitialDelay time.Duration
	// Sleep waits for d or until ctx is done. Tests replace it to record delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// Logger receives a warning per retry. Nil disables logging.
	Logger *zap.Logger
}

// DefaultConfig returns 3 retries starting at 1s (1s, 2s, 4s), no jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: time.Second,
	}
}

// Run calls op until it succeeds, fails with a non-retryable error, or
// MaxRetries retries are used up. On exhaustion the last error is returned
// unchanged. A done ctx stops the wait between attempts and returns ctx.Err()
// without calling op again.
func Run[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var (
		zero    T
		lastErr error
	)
	exp := schedule(cfg.InitialDelay)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := exp.NextBackOff()
			if cfg.Logger != nil {
				cfg.Logger.Warn("retrying after transient failure",
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
					zap.Error(lastErr),
				)
			}
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
	}

	return zero, lastErr
}

// schedule doubles from initial with no jitter, no interval cap and no
// elapsed-time limit; the attempt count alone bounds the sequence.
func schedule(initial time.Duration) *backoff.ExponentialBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Duration(math.MaxInt64)
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// Delay returns the wait before the given attempt (1-based retry number):
// initial * 2^(attempt-1).
func Delay(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	exp := schedule(initial)
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = exp.NextBackOff()
	}
	return d
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRetryable reports whether err is a rate-limit or timeout failure, either
// classified as such or recognisable from its message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errors.ErrRateLimit) || errors.Is(err, errors.ErrTimeout) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"429", "503", "timeout"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
