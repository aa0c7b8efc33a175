package backend

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryRead runs read until it succeeds, fails with a non-transient error or
// window elapses. Only reads may be retried: a repeated write could apply twice.
func RetryRead[T any](ctx context.Context, window time.Duration, read func(context.Context) (T, error)) (T, error) {
	if window <= 0 {
		return read(ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = window / 2
	b.MaxElapsedTime = window

	return backoff.RetryWithData(func() (T, error) {
		v, err := read(ctx)
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithContext(b, ctx))
}
