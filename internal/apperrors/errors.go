// Package apperrors defines the sentinel errors shared across the rate
// pipeline. Callers match them with errors.Is and wrap them with
// fmt.Errorf("%w: ...") to add context.
package apperrors

import "errors"

var (
	// Source-level failures. All of them are recoverable for the run as a
	// whole: the aggregator counts them and keeps going.
	ErrSourceTimeout     = errors.New("source timed out")
	ErrSourceUnreachable = errors.New("source unreachable")
	ErrMalformedResponse = errors.New("malformed response")
	ErrRateLimited       = errors.New("rate limited")

	// ErrNoSourcesAvailable is returned when every configured source failed.
	// It is the only fatal condition for an aggregation run.
	ErrNoSourcesAvailable = errors.New("no sources available")

	// ErrRateOutOfBounds marks a rate outside the configured validity band.
	// Such rates are dropped and counted, never clamped.
	ErrRateOutOfBounds = errors.New("rate out of bounds")

	// ErrStaleRate is reported when a cached rate is older than the TTL.
	// The caller decides whether to refuse the operation or trigger a refresh.
	ErrStaleRate = errors.New("rate is stale")

	// ErrPersistence marks a failed snapshot or history write. The previous
	// on-disk state remains intact.
	ErrPersistence = errors.New("persistence failure")

	ErrCurrencyNotFound = errors.New("unknown currency")
)
