package remote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hemanttanawade-debug/drive-migration/internal/metrics"
)

// RetryPolicy bounds the backoff applied to transient remote failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy matches the remote API's published rate-limit guidance.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     20 * time.Second,
}

// Call runs fn, retrying transient failures with capped exponential backoff
// until the attempt budget is spent. Non-transient failures return
// immediately. The final transient error is returned once the budget is
// exhausted, never swallowed.
func Call(ctx context.Context, policy RetryPolicy, op string, fn func() error) error {
	if policy.MaxAttempts < 1 {
		policy = DefaultRetryPolicy
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.InitialBackoff
	bo.MaxInterval = policy.MaxBackoff
	bo.MaxElapsedTime = 0 // attempts bound the loop, not wall time

	attempts := 0
	wrapped := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempts >= policy.MaxAttempts {
			return backoff.Permanent(err)
		}
		metrics.RemoteRetries.Inc()
		slog.Debug("retrying remote call", "op", op, "attempt", attempts, "error", err)
		return err
	}

	err := backoff.Retry(wrapped, backoff.WithContext(bo, ctx))
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
