package queue

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is applied by the worker pool around every task handler.
// A task runs at most MaxRetries+1 times, waiting Backoff between attempts.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy is three retries five seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Backoff: 5 * time.Second}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return backoff.Permanent(err) }

// Do runs op until it succeeds, returns a permanent error, the budget is
// spent or ctx is done. It reports how many attempts ran and the last error.
// notify, when set, is called before each wait.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error, notify func(err error, wait time.Duration, attempt int)) (int, error) {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Backoff), uint64(maxRetries)),
		ctx,
	)

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		return op(ctx, attempts)
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, wait, attempts)
		}
	})
	return attempts, err
}
