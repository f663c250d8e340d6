package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "retail-chat-workers/internal/common/errors"
)

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		msg      string
		expected bool
	}{
		{"rpc error: code = Unavailable desc = connection refused", true},
		{"context deadline exceeded", true},
		{"write: broken pipe", true},
		{"rpc error: code = NotFound desc = job not found", false},
		{"permission denied", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableZeebeError(errors.New(tt.msg)))
		})
	}
}

func TestMapZeebeError(t *testing.T) {
	err := MapZeebeError(errors.New("context deadline exceeded"), "complete-job", 2)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTimeout))

	err = MapZeebeError(errors.New("connection refused"), "complete-job", 0)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExternalService))

	var stdErr *apperrors.StandardError
	assert.True(t, errors.As(err, &stdErr))
	assert.Equal(t, "zeebe", stdErr.Metadata["service"])
}

func fastRetries(maxRetries int) *ClientConfig {
	return &ClientConfig{
		RequestTimeout: time.Second,
		RetryConfig:    &RetryConfig{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("transient errors are retried", func(t *testing.T) {
		calls := 0
		got, err := withRetry(context.Background(), fastRetries(3), "deploy", func(ctx context.Context) (int64, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("rpc error: code = Unavailable desc = connection refused")
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(42), got)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent errors stop at once", func(t *testing.T) {
		calls := 0
		_, err := withRetry(context.Background(), fastRetries(3), "deploy", func(ctx context.Context) (int64, error) {
			calls++
			return 0, errors.New("rpc error: code = InvalidArgument desc = bad bpmn")
		})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExternalService))
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		_, err := withRetry(context.Background(), fastRetries(2), "deploy", func(ctx context.Context) (int64, error) {
			calls++
			return 0, errors.New("context deadline exceeded")
		})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTimeout))
		assert.Equal(t, 3, calls)
	})

	t.Run("each attempt is bounded", func(t *testing.T) {
		cfg := fastRetries(0)
		cfg.RequestTimeout = 20 * time.Millisecond
		_, err := withRetry(context.Background(), cfg, "deploy", func(ctx context.Context) (int64, error) {
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			<-ctx.Done()
			return 0, ctx.Err()
		})
		assert.Error(t, err)
	})

	t.Run("cancelled context stops backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := fastRetries(5)
		cfg.RetryConfig.BaseDelay = time.Hour
		cfg.RetryConfig.MaxDelay = time.Hour
		calls := 0
		_, err := withRetry(ctx, cfg, "deploy", func(ctx context.Context) (int64, error) {
			calls++
			cancel()
			return 0, errors.New("connection reset by peer")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestDeployResources_MissingFile(t *testing.T) {
	c := &Client{config: fastRetries(0)}
	keys, err := c.DeployResources(context.Background(), "/nonexistent/chat-turn.bpmn")
	assert.ErrorContains(t, err, "read process definition")
	assert.Empty(t, keys)
}
