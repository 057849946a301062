package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/types"
)

func fastPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "应该只调用一次")
}

func TestBackoffRetryer_RetryableTypedError(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return types.NewError(types.ErrUpstreamError, "upstream busy").WithRetryable(true)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount, "应该调用三次")
}

func TestBackoffRetryer_NonRetryableTypedError(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	typed := types.NewError(types.ErrInvalidRequest, "bad request")
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return typed
	})

	assert.Equal(t, 1, callCount, "不可重试错误只调用一次")
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestBackoffRetryer_ExhaustedKeepsTypedError(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return types.NewError(types.ErrUpstreamError, "still down").
			WithHTTPStatus(502).
			WithRetryable(true)
	})

	assert.Equal(t, 3, callCount, "初始 + 2 次重试")
	// 耗尽后返回的错误仍然是结构化错误，状态码映射不能丢失
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestBackoffRetryer_PlainErrorsUseExplicitList(t *testing.T) {
	transient := errors.New("transient")

	t.Run("listed error retries", func(t *testing.T) {
		policy := fastPolicy(2)
		policy.RetryableErrors = []error{transient}
		retryer := NewBackoffRetryer(policy, zap.NewNop())

		callCount := 0
		_ = retryer.Do(context.Background(), func() error {
			callCount++
			return transient
		})
		assert.Equal(t, 3, callCount)
	})

	t.Run("unlisted error does not retry", func(t *testing.T) {
		retryer := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

		callCount := 0
		_ = retryer.Do(context.Background(), func() error {
			callCount++
			return errors.New("unknown")
		})
		assert.Equal(t, 1, callCount)
	})
}

func TestBackoffRetryer_ContextCanceled(t *testing.T) {
	policy := fastPolicy(5)
	policy.InitialDelay = 200 * time.Millisecond
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := retryer.Do(ctx, func() error {
		callCount++
		return types.NewError(types.ErrUpstreamError, "down").WithRetryable(true)
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount, "取消后不应继续重试")
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	policy := fastPolicy(2)
	var attempts []int
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	_ = retryer.Do(context.Background(), func() error {
		return types.NewError(types.ErrUpstreamError, "down").WithRetryable(true)
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoWithResultTyped(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(1), zap.NewNop())

	val, err := DoWithResultTyped[int](retryer, context.Background(), func() (int, error) {
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, val)

	_, err = DoWithResultTyped[int](retryer, context.Background(), func() (int, error) {
		return 0, types.NewError(types.ErrInvalidRequest, "nope")
	})
	assert.Error(t, err)
}
