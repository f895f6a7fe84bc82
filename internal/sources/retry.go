package sources

import (
	"context"
	"errors"
	"time"

	"github.com/valutatrade/valutatrade-hub/internal/apperrors"
	"github.com/valutatrade/valutatrade-hub/internal/rates"
)

// FetchFunc is the shape shared by Source.Fetch and its wrapped forms, so
// combinators compose at the call site.
type FetchFunc func(ctx context.Context) (map[rates.Pair]float64, error)

type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	// Backoff multiplies the delay after each failed attempt. Values <= 1
	// keep the delay fixed.
	Backoff float64
}

// WithRetry wraps fn with bounded retries. Malformed responses are not
// retried: a provider that answered with garbage will answer with the same
// garbage a moment later.
func WithRetry(policy RetryPolicy, fn FetchFunc) FetchFunc {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return func(ctx context.Context) (map[rates.Pair]float64, error) {
		delay := policy.Delay
		var lastErr error
		for i := 0; i < attempts; i++ {
			if i > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, lastErr
				}
				if policy.Backoff > 1 {
					delay = time.Duration(float64(delay) * policy.Backoff)
				}
			}
			out, err := fn(ctx)
			if err == nil {
				return out, nil
			}
			lastErr = err
			if errors.Is(err, apperrors.ErrMalformedResponse) || errors.Is(err, context.Canceled) {
				break
			}
		}
		return nil, lastErr
	}
}

// WithTiming reports the elapsed wall time of each call through observe.
func WithTiming(fn FetchFunc, observe func(time.Duration)) FetchFunc {
	return func(ctx context.Context) (map[rates.Pair]float64, error) {
		start := time.Now()
		out, err := fn(ctx)
		if observe != nil {
			observe(time.Since(start))
		}
		return out, err
	}
}
