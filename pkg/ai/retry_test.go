package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func recordingSleep(delays *[]time.Duration) sleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, err := withRetry(context.Background(), recordingSleep(&delays), func(context.Context) (ChatResponse, error) {
		calls++
		return ChatResponse{}, &ProviderError{Provider: "openai", StatusCode: 500, Message: "server error"}
	})

	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{5 * time.Second, 30 * time.Second}, delays)
}

func TestWithRetryAuthErrorAbortsImmediately(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, err := withRetry(context.Background(), recordingSleep(&delays), func(context.Context) (ChatResponse, error) {
		calls++
		return ChatResponse{}, &ProviderError{Provider: "openai", StatusCode: 401, Message: "invalid api key"}
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, delays)
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	var delays []time.Duration
	calls := 0

	resp, err := withRetry(context.Background(), recordingSleep(&delays), func(context.Context) (ChatResponse, error) {
		calls++
		if calls == 1 {
			return ChatResponse{}, &ProviderError{Provider: "mistral", StatusCode: 429, Message: "rate limited"}
		}
		return ChatResponse{Content: "ok"}, nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, "ok", resp.Content)
	require.Equal(t, []time.Duration{5 * time.Second}, delays)
}

func TestWithRetryStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := withRetry(ctx, contextSleep, func(context.Context) (ChatResponse, error) {
		calls++
		cancel()
		return ChatResponse{}, &ProviderError{Provider: "openai", StatusCode: 503, Message: "unavailable"}
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestProviderErrorClassification(t *testing.T) {
	cases := []struct {
		err  ProviderError
		auth bool
	}{
		{ProviderError{StatusCode: 401}, true},
		{ProviderError{StatusCode: 403}, true},
		{ProviderError{StatusCode: 500}, false},
		{ProviderError{StatusCode: 429}, false},
		{ProviderError{Message: "Invalid API key provided"}, true},
		{ProviderError{Message: "authentication required"}, true},
		{ProviderError{Message: "connection reset by peer"}, false},
	}

	for _, tc := range cases {
		err := tc.err
		require.Equal(t, tc.auth, err.Auth(), err.Message)
		require.Equal(t, !tc.auth, err.Retryable(), err.Message)
	}
}

func TestProviderErrorUnwrapsThroughWrapping(t *testing.T) {
	inner := &ProviderError{Provider: "anthropic", StatusCode: 401, Message: "unauthorized"}
	wrapped := errors.Join(errors.New("chat failed"), inner)

	var provErr *ProviderError
	require.True(t, errors.As(wrapped, &provErr))
	require.True(t, provErr.Auth())
}
