package chainio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ChainReadError wraps a transient I/O failure from a ChainReader call.
// Per the error design (§7), it is retried with bounded exponential backoff
// at the boundary and surfaced only once the retry budget is exhausted.
type ChainReadError struct {
	Op  string
	Err error
}

func (e *ChainReadError) Error() string {
	return fmt.Sprintf("chainio: %s: %v", e.Op, e.Err)
}

func (e *ChainReadError) Unwrap() error {
	return e.Err
}

// WithRetry runs fn under a bounded exponential backoff policy, retrying
// only on *ChainReadError. Any other error (including context cancellation)
// is returned immediately without retry.
func WithRetry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), 5), ctx)

	err := backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var chainErr *ChainReadError
		if errors.As(err, &chainErr) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)

	if err != nil {
		return fmt.Errorf("%s: retries exhausted: %w", op, err)
	}
	return nil
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 2.0
	return b
}
