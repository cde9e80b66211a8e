package service

import (
	"context"
	"errors"
	"time"

	"grid_adequacy/internal/models"
	"grid_adequacy/internal/upstream"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds an exponential backoff. MaxRetries counts retries after
// the first attempt.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)
}

// withRetry runs op until it succeeds, fails permanently, or the policy is exhausted.
func withRetry(ctx context.Context, p RetryPolicy, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx))
}

// retryable separates transport trouble from answers that will not change.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, models.ErrInvalidFrameSet) {
		return false
	}
	var se *upstream.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
