package target

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryTarget wraps another Target and retries transient errors with configurable backoff.
type RetryTarget struct {
	inner      Target
	maxRetries int
	backoff    string // "exponential" or "linear"
}

// NewRetryTarget creates a Target that retries transient errors.
// backoff must be "exponential" or "linear". maxRetries is the maximum number
// of retry attempts (0 means no retries).
func NewRetryTarget(inner Target, maxRetries int, backoff string) Target {
	if backoff != "exponential" && backoff != "linear" {
		backoff = "exponential"
	}
	return &RetryTarget{
		inner:      inner,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

func (r *RetryTarget) Name() string {
	return r.inner.Name()
}

func (r *RetryTarget) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	return r.retryOp(ctx, func() error {
		return r.inner.Put(ctx, key, data, opts)
	})
}

func (r *RetryTarget) PutIfAbsent(ctx context.Context, key string, data []byte, opts PutOptions) error {
	return r.retryOp(ctx, func() error {
		return r.inner.PutIfAbsent(ctx, key, data, opts)
	})
}

func (r *RetryTarget) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.retryOp(ctx, func() error {
		var e error
		data, e = r.inner.Get(ctx, key)
		return e
	})
	return data, err
}

func (r *RetryTarget) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := r.retryOp(ctx, func() error {
		var e error
		ok, e = r.inner.Exists(ctx, key)
		return e
	})
	return ok, err
}

func (r *RetryTarget) Delete(ctx context.Context, key string) error {
	return r.retryOp(ctx, func() error {
		return r.inner.Delete(ctx, key)
	})
}

func (r *RetryTarget) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := r.retryOp(ctx, func() error {
		var e error
		keys, e = r.inner.List(ctx, prefix)
		return e
	})
	return keys, err
}

// isTransient returns true if the error is transient and should be retried.
// ErrNotFound, ErrExists and context cancellation are final.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExists) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// retryOp executes the operation and retries on transient errors.
func (r *RetryTarget) retryOp(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.calcBackoff(attempt)):
		}
	}
	return lastErr
}

// calcBackoff computes the backoff duration for the given attempt number.
func (r *RetryTarget) calcBackoff(attempt int) time.Duration {
	const baseDelay = 100 * time.Millisecond
	const maxDelay = 30 * time.Second

	var delay time.Duration
	switch r.backoff {
	case "linear":
		delay = baseDelay * time.Duration(attempt+1)
	default: // "exponential"
		delay = baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	}

	if delay > maxDelay {
		delay = maxDelay
	}

	// Jitter of +/- 25%.
	jitter := time.Duration(rand.Int63n(int64(delay/2))) - delay/4
	delay += jitter

	if delay < 0 {
		delay = baseDelay
	}

	return delay
}
