package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewValidationError("interval out of range"))

	assert.True(t, stdErrors.Is(err, NewValidationError("anything")))
	assert.False(t, stdErrors.Is(err, NewStateError("anything")))
	assert.True(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(stdErrors.New("plain"), CodeValidation))
}

func TestPersistenceErrorUnwrap(t *testing.T) {
	cause := stdErrors.New("disk full")
	err := NewPersistenceError(cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable)
	assert.Equal(t, SeverityHigh, err.Severity)
}

func TestHandler_Handle(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), false)

	report := h.Handle(context.Background(), NewUnknownUserError(42))
	assert.Equal(t, CodeUnknownUser, report.Code)
	assert.Equal(t, "Сначала отправьте /start", report.UserMessage)
	assert.False(t, report.Retryable)

	report = h.Handle(context.Background(), fmt.Errorf("save: %w", NewPersistenceError(stdErrors.New("disk full"))))
	assert.Equal(t, CodePersistence, report.Code)
	assert.True(t, report.Retryable)

	report = h.Handle(context.Background(), stdErrors.New("boom"))
	assert.Equal(t, CodeUnknown, report.Code)
	assert.Equal(t, SeverityHigh, report.Severity)
	assert.Equal(t, defaultUserMessage, report.UserMessage)
	assert.False(t, report.Retryable)

	assert.Equal(t, Report{}, h.Handle(context.Background(), nil))
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Attempts: 5, Initial: 100 * time.Millisecond, Max: time.Second}
	plain := NewExternalAPIError("telegram", nil)

	assert.Equal(t, 100*time.Millisecond, b.delay(0, plain))
	assert.Equal(t, 400*time.Millisecond, b.delay(2, plain))
	assert.Equal(t, time.Second, b.delay(4, plain))

	flood := NewExternalAPIError("telegram", nil)
	flood.RetryAfter = 3 * time.Second
	assert.Equal(t, 3*time.Second, b.delay(0, flood))
}

func TestWithRetry(t *testing.T) {
	t.Run("stops on non retryable error", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return NewValidationError("bad")
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries retryable error until success", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 2 {
				return NewExternalAPIError("telegram", stdErrors.New("timeout"))
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		calls := 0
		b := Backoff{Attempts: 2, Initial: time.Millisecond, Max: time.Millisecond}
		err := b.Retry(context.Background(), func() error {
			calls++
			return NewExternalAPIError("telegram", stdErrors.New("timeout"))
		})

		assert.True(t, HasCode(err, CodeExternalAPI))
		assert.Equal(t, 3, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := WithRetry(ctx, func() error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}
