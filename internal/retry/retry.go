// Package retry shields the resolver from transient directory faults. It
// wraps any remote call with a bounded, fixed-delay retry loop; permanent
// and not-found failures pass through without consuming retry budget.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/permscope/permscope/internal/models"
)

// Config holds the bind-at-startup retry settings. A Config is immutable
// and safe to share across concurrent traversal workers.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, Delay: 500 * time.Millisecond}
}

// Do invokes fn, retrying transient failures up to the configured attempt
// count with a fixed delay between attempts. On exhaustion the last cause
// is surfaced as an exhausted-kind directory error.
func Do(ctx context.Context, cfg Config, op string, fn func() error) error {
	attempts := 0

	wrapped := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}

		var derr *models.DirectoryError
		if errors.As(err, &derr) && derr.IsRetryable() {
			logrus.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempts,
				"error":   err,
			}).Debug("Transient directory error, will retry")
			return err
		}

		return backoff.Permanent(err)
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.Delay), uint64(maxAttempts-1)),
		ctx)

	err := backoff.Retry(wrapped, policy)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	// A transient error surviving the loop means the budget ran out.
	if models.IsTransient(err) {
		return models.NewExhaustedError(op, err)
	}
	return err
}

// DoValue is Do for calls that produce a value.
func DoValue[T any](ctx context.Context, cfg Config, op string, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, op, func() error {
		value, err := fn()
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
