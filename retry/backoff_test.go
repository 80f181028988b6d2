package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(int) error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_SucceedsOnThirdAttempt(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(), zap.NewNop())

	var attempts []int
	result, err := retryer.DoWithResult(context.Background(), func(attempt int) (any, error) {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return "partial", errors.New("temporary")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestBackoffRetryer_ExhaustionReturnsLastErrorUnchanged(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(), zap.NewNop())

	errs := []error{errors.New("first"), errors.New("second"), errors.New("third")}
	err := retryer.Do(context.Background(), func(attempt int) error {
		return errs[attempt-1]
	})

	assert.Same(t, errs[2], err)
}

func TestBackoffRetryer_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	policy := fastPolicy()
	policy.Retryable = func(err error) bool { return !errors.Is(err, fatal) }
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(int) error {
		callCount++
		return fatal
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_ContextCanceledDuringBackoff(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Second}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	transient := errors.New("transient")
	callCount := 0
	err := retryer.Do(ctx, func(int) error {
		callCount++
		return transient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	policy := fastPolicy()
	var seen []int
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		seen = append(seen, attempt)
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	_ = retryer.Do(context.Background(), func(int) error { return errors.New("x") })

	assert.Equal(t, []int{2, 3}, seen)
}

func TestBackoffRetryer_DelaySchedule(t *testing.T) {
	r := NewBackoffRetryer(DefaultRetryPolicy(), nil).(*backoffRetryer)

	assert.Equal(t, 500*time.Millisecond, r.Delay(1))
	assert.Equal(t, time.Second, r.Delay(2))
	assert.Equal(t, 2*time.Second, r.Delay(3))
	assert.Equal(t, 4*time.Second, r.Delay(4))
	assert.Equal(t, 5*time.Second, r.Delay(5))
	assert.Equal(t, 5*time.Second, r.Delay(10))
}

func TestBackoffRetryer_JitterStaysInBounds(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.Jitter = true
	r := NewBackoffRetryer(policy, nil).(*backoffRetryer)

	for i := 0; i < 100; i++ {
		d := r.Delay(2)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}

func TestNewBackoffRetryer_NormalizesPolicy(t *testing.T) {
	r := NewBackoffRetryer(&RetryPolicy{MaxAttempts: 0, Multiplier: 0.5}, nil).(*backoffRetryer)

	assert.Equal(t, 1, r.policy.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, r.policy.InitialDelay)
	assert.Equal(t, 2.0, r.policy.Multiplier)
}

func TestDoWithResultTyped(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(), zap.NewNop())

	val, err := DoWithResultTyped(retryer, context.Background(), func(int) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)

	_, err = DoWithResultTyped(retryer, context.Background(), func(int) (int, error) {
		return 0, errors.New("nope")
	})
	assert.Error(t, err)
}
