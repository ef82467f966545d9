package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	compensationAttempts = 5
	compensationTimeout  = 15 * time.Second
)

// retryBackOff allows attempts calls in total with a short jittered
// exponential wait between them. It stops early when ctx ends.
func retryBackOff(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0

	retries := 0
	if attempts > 1 {
		retries = attempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
