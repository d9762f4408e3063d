package ai

import (
	"context"
	"errors"
	"time"
)

// backoffDelays separate successive attempts. The last entry only applies when
// maxAttempts is raised above its current value.
var backoffDelays = []time.Duration{5 * time.Second, 30 * time.Second, 120 * time.Second}

const maxAttempts = 3

// sleepFunc pauses between attempts; injectable so tests never wait.
type sleepFunc func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withRetry invokes fn up to maxAttempts times with increasing backoff.
// A *ProviderError classified as an auth failure aborts immediately.
func withRetry(ctx context.Context, sleep sleepFunc, fn func(context.Context) (ChatResponse, error)) (ChatResponse, error) {
	if sleep == nil {
		sleep = contextSleep
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoffDelays[attempt-1]); err != nil {
				return ChatResponse{}, err
			}
		}

		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var provErr *ProviderError
		if errors.As(err, &provErr) && !provErr.Retryable() {
			return ChatResponse{}, err
		}
	}

	return ChatResponse{}, lastErr
}
