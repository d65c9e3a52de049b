package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fast() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2,
	}
}

type flaggedError struct{ retry bool }

func (e flaggedError) Error() string     { return "deadlock victim" }
func (e flaggedError) IsRetryable() bool { return e.retry }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Nil(t, cfg.Retryable)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Transaction (Process ID 61) was deadlocked on lock resources"), true},
		{errors.New("Lock request time out period exceeded"), true},
		{errors.New("read tcp 10.0.0.1:1433: i/o timeout"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("[6] Not Leader For Partition"), true},
		{errors.New("Invalid column name 'Age'"), false},
		{flaggedError{retry: false}, false},
		{fmt.Errorf("wrapped: %w", flaggedError{retry: true}), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.err), "%v", tt.err)
	}
}

func TestDoIfRetryable_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	var attempts []int
	cfg := fast()
	cfg.OnRetry = func(attempt int, _ error, delay time.Duration) {
		attempts = append(attempts, attempt)
		assert.LessOrEqual(t, delay, cfg.MaxDelay)
	}

	err := DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("deadlock")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoIfRetryable_PermanentErrorIsNotRetried(t *testing.T) {
	permanent := errors.New("Cannot insert the value NULL into column 'Id'")
	calls := 0
	err := DoIfRetryable(context.Background(), fast(), func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoIfRetryable_ReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fast(), func() error {
		calls++
		return fmt.Errorf("attempt %d: i/o timeout", calls)
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, "attempt 4: i/o timeout", err.Error())
}

func TestDoIfRetryable_CustomClassifier(t *testing.T) {
	driverErr := errors.New("mssql: error 1205")
	cfg := fast()
	cfg.Retryable = func(err error) bool { return errors.Is(err, driverErr) }

	calls := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		if calls == 1 {
			return driverErr
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoIfRetryable_RepeatedClassBecomesPermanent(t *testing.T) {
	cfg := fast()
	cfg.MaxRetries = 10
	cfg.MaxSameErrorType = 2

	calls := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		return errors.New("deadlock")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "type=deadlock")
}

func TestDoIfRetryable_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fast()
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	err := DoIfRetryable(ctx, cfg, func() error { return errors.New("connection reset by peer") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fast(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("Login failed for user 'sink'")
		}
		return "connected", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "connected", got)
	assert.Equal(t, 2, calls)
}

func TestDoWithResult_Exhausted(t *testing.T) {
	cfg := fast()
	cfg.MaxRetries = 1
	calls := 0
	_, err := DoWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, errors.New("no route")
	})
	assert.EqualError(t, err, "no route")
	assert.Equal(t, 2, calls)
}
