package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permscope/permscope/internal/models"
)

func testConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, Delay: time.Millisecond}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testConfig(3), "op", func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testConfig(3), "op", func() error {
		calls++
		if calls < 3 {
			return models.NewTransientError("op", errors.New("throttled"))
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls, "two transient failures should consume exactly two retries")
}

func TestDo_ExhaustsRetryBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testConfig(2), "list_role_assignments", func() error {
		calls++
		return models.NewTransientError("list_role_assignments", errors.New("503"))
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls, "MaxAttempts bounds total attempts, including the first")

	var derr *models.DirectoryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, models.DirectoryErrorExhausted, derr.Kind)
	assert.Equal(t, "list_role_assignments", derr.Op)
	assert.ErrorContains(t, derr.Err, "503")
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	permanent := models.NewPermanentError("op", errors.New("forbidden"))
	err := Do(context.Background(), testConfig(5), "op", func() error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var derr *models.DirectoryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, models.DirectoryErrorPermanent, derr.Kind)
}

func TestDo_NotFoundNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testConfig(5), "get_identity", func() error {
		calls++
		return models.NewNotFoundError("get_identity", errors.New("no such principal"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, models.IsNotFound(err))
}

func TestDo_UntaggedErrorNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testConfig(5), "op", func() error {
		calls++
		return errors.New("programming error")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, Config{MaxAttempts: 10, Delay: 50 * time.Millisecond}, "op", func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return models.NewTransientError("op", errors.New("flaky"))
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 3)
}

func TestDo_CancelledContextPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, testConfig(3), "op", func() error {
		return ctx.Err()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var derr *models.DirectoryError
	assert.False(t, errors.As(err, &derr), "cancellation must not be rewrapped as a directory error")
}

func TestDo_ZeroAttemptsStillRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 0, Delay: 0}, "op", func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValue_ReturnsValue(t *testing.T) {
	value, err := DoValue(context.Background(), testConfig(3), "op", func() (string, error) {
		return "resolved", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "resolved", value)
}

func TestDoValue_ZeroValueOnFailure(t *testing.T) {
	calls := 0
	value, err := DoValue(context.Background(), testConfig(2), "op", func() ([]string, error) {
		calls++
		return []string{"partial"}, models.NewTransientError("op", errors.New("flaky"))
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Nil(t, value)
}

func TestDoValue_RecoversAfterTransientFailure(t *testing.T) {
	calls := 0
	value, err := DoValue(context.Background(), testConfig(3), "op", func() (int, error) {
		calls++
		if calls == 1 {
			return 0, models.NewTransientError("op", errors.New("flaky"))
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 42, value)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Delay)
}
