package asyncx_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/authlink/pkg/asyncx"
)

func TestFuture_AwaitCachesResult(t *testing.T) {
	var calls int32
	f := asyncx.Run(func() (int, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	})

	v1, err := f.Await()
	require.NoError(t, err)
	v2, _ := f.Await()

	assert.Equal(t, 42, v1)
	assert.Equal(t, 42, v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAll_KeepsOrderAndReturnsFirstError(t *testing.T) {
	ctx := context.Background()

	got, err := asyncx.All(ctx,
		func(context.Context) (string, error) { time.Sleep(5 * time.Millisecond); return "a", nil },
		func(context.Context) (string, error) { return "b", nil },
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	boom := errors.New("boom")
	_, err = asyncx.All(ctx,
		func(context.Context) (string, error) { return "", boom },
		func(context.Context) (string, error) { return "b", nil },
	)
	assert.ErrorIs(t, err, boom)
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	var calls int
	v, err := asyncx.RetryWithBackoff(context.Background(), 3, time.Millisecond, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffIf_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	var calls int

	_, err := asyncx.RetryWithBackoffIf(context.Background(), 5, time.Millisecond,
		func(err error) bool { return !errors.Is(err, permanent) },
		func(context.Context) (int, error) {
			calls++
			return 0, permanent
		})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := asyncx.RetryWithBackoff(ctx, 3, time.Millisecond, func(context.Context) (int, error) {
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
