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

// sleepRecorder captures sleep requests without waiting.
type sleepRecorder struct {
	slept []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		patterns []string
		want     bool
	}{
		{"nil error", nil, nil, false},
		{"rate limit", errors.New("Rate limit reached for gpt-4o"), nil, true},
		{"read timeout", errors.New("Read timed out"), nil, true},
		{"connection reset", errors.New("Connection reset by peer"), nil, true},
		{"overloaded", errors.New("The server is overloaded or not ready yet"), nil, true},
		{"wrapped", fmt.Errorf("calling api: %w", errors.New("Read timed out")), nil, true},
		{"auth failure", errors.New("invalid api key"), nil, false},
		{"custom pattern", errors.New("Anthropic API rate limit exceeded"), []string{"Anthropic API rate limit exceeded"}, true},
		{"custom pattern excludes defaults", errors.New("Read timed out"), []string{"nope"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err, tc.patterns))
		})
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	rec := &sleepRecorder{}
	e := New(Config{MaxAttempts: 5, Delay: 60 * time.Second, Sleep: rec.sleep})

	calls := 0
	err := e.Do(context.Background(), "inference", func() error {
		calls++
		if calls < 3 {
			return errors.New("Rate limit reached for gpt-4o")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{60 * time.Second, 60 * time.Second}, rec.slept)
}

func TestDoExhaustsBudget(t *testing.T) {
	rec := &sleepRecorder{}
	e := New(Config{MaxAttempts: 3, Delay: time.Second, Sleep: rec.sleep})

	cause := errors.New("Read timed out")
	calls := 0
	err := e.Do(context.Background(), "inference", func() error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.slept, 2)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, "inference", exhausted.Op)
	assert.ErrorIs(t, err, cause)
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	rec := &sleepRecorder{}
	e := New(Config{MaxAttempts: 5, Delay: time.Second, Sleep: rec.sleep})

	cause := errors.New("invalid api key")
	calls := 0
	err := e.Do(context.Background(), "inference", func() error {
		calls++
		return cause
	})

	require.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.slept)
}

func TestDoOnRetryCallback(t *testing.T) {
	rec := &sleepRecorder{}
	var attempts []int
	e := New(Config{
		MaxAttempts: 3,
		Delay:       time.Second,
		Sleep:       rec.sleep,
		OnRetry:     func(attempt int, _ error) { attempts = append(attempts, attempt) },
	})

	calls := 0
	err := e.Do(context.Background(), "inference", func() error {
		calls++
		if calls == 1 {
			return errors.New("Connection reset by peer")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1}, attempts)
}

func TestDoCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(Config{MaxAttempts: 3, Delay: time.Second})
	err := e.Do(ctx, "inference", func() error {
		t.Fatal("operation must not run under a cancelled context")
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoCancelDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New(Config{
		MaxAttempts: 3,
		Delay:       time.Second,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	calls := 0
	err := e.Do(ctx, "inference", func() error {
		calls++
		return errors.New("Read timed out")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "attempting", StateAttempting.String())
	assert.Equal(t, "sleeping", StateSleeping.String())
	assert.Equal(t, "succeeded", StateSucceeded.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Delay)
	assert.Equal(t, DefaultPatterns, cfg.Patterns)
	assert.NotNil(t, cfg.Sleep)
}
