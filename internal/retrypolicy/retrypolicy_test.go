package retrypolicy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, Jitter: false}
}

func TestDo_SucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	p := New(fastConfig())
	calls := 0
	result, err := p.Do(context.Background(), func(error) bool { return true }, func(ctx context.Context) (any, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 1, calls)
}

func TestDo_ReturnsNonRetryableErrorUntouched(t *testing.T) {
	p := New(fastConfig())
	sentinel := errors.New("boom")
	calls := 0
	_, err := p.Do(context.Background(), func(error) bool { return false }, func(ctx context.Context) (any, error) {
		calls++
		return nil, sentinel
	})
	require.Same(t, sentinel, err)
	require.Equal(t, 1, calls, "a non-retryable error must not be retried")
}

func TestDo_RetriesRetryableErrorUntilSuccess(t *testing.T) {
	p := New(fastConfig())
	sentinel := errors.New("transient")
	calls := 0
	result, err := p.Do(context.Background(), func(error) bool { return true }, func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, sentinel
		}
		return "recovered", nil
	})
	require.NoError(t, err)
	require.Equal(t, "recovered", result)
	require.Equal(t, 3, calls)
}

func TestDo_WrapsErrorOnlyWhenAttemptsExhausted(t *testing.T) {
	p := New(fastConfig())
	sentinel := errors.New("always fails")
	calls := 0
	_, err := p.Do(context.Background(), func(error) bool { return true }, func(ctx context.Context) (any, error) {
		calls++
		return nil, sentinel
	})
	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, p.MaxAttempts(), calls)
}

func TestDo_HonoursContextCancellationBetweenAttempts(t *testing.T) {
	p := New(Config{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := p.Do(ctx, func(error) bool { return true }, func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("retry me")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, calls, 5)
}

func TestDelay_NeverExceedsMaxDelay(t *testing.T) {
	p := New(Config{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 3, Jitter: false})
	require.LessOrEqual(t, p.Delay(5), 2*time.Second)
}
