package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient is a scripted Client for failover tests.
type stubClient struct {
	model string
	calls int
	fn    func(calls int) (*Response, error)
}

func (s *stubClient) Infer(_ context.Context, _ Request) (*Response, error) {
	s.calls++
	return s.fn(s.calls)
}

func (s *stubClient) Model() string { return s.model }

func alwaysFail(err error) *stubClient {
	return &stubClient{model: "failing", fn: func(int) (*Response, error) { return nil, err }}
}

func alwaysSucceed(text string) *stubClient {
	return &stubClient{model: "working", fn: func(int) (*Response, error) {
		return &Response{Text: text}, nil
	}}
}

func TestNewFallbackRequiresClients(t *testing.T) {
	_, err := NewFallback()
	require.Error(t, err)
}

func TestFallbackPrimarySucceeds(t *testing.T) {
	primary := alwaysSucceed("from primary")
	secondary := alwaysSucceed("from secondary")

	fc, err := NewFallback(primary, secondary)
	require.NoError(t, err)

	resp, err := fc.Infer(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from primary", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackFailsOver(t *testing.T) {
	primary := alwaysFail(errors.New("provider down"))
	secondary := alwaysSucceed("from secondary")

	fc, err := NewFallback(primary, secondary)
	require.NoError(t, err)

	resp, err := fc.Infer(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from secondary", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestFallbackAllFail(t *testing.T) {
	cause := errors.New("also down")
	fc, err := NewFallback(alwaysFail(errors.New("down")), alwaysFail(cause))
	require.NoError(t, err)

	_, err = fc.Infer(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "all providers failed")
}

func TestFallbackBreakerSkipsTrippedProvider(t *testing.T) {
	primary := alwaysFail(errors.New("provider down"))
	secondary := alwaysSucceed("from secondary")

	fc, err := NewFallback(primary, secondary)
	require.NoError(t, err)

	// Three consecutive failures trip the primary's breaker.
	for i := 0; i < 3; i++ {
		resp, err := fc.Infer(context.Background(), Request{Prompt: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "from secondary", resp.Text)
	}
	assert.Equal(t, 3, primary.calls)

	// With the circuit open the primary is skipped without a request.
	resp, err := fc.Infer(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from secondary", resp.Text)
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, 4, secondary.calls)
}

func TestFallbackStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	primary := &stubClient{model: "canceling", fn: func(int) (*Response, error) {
		cancel()
		return nil, ctx.Err()
	}}
	secondary := alwaysSucceed("unreachable")

	fc, err := NewFallback(primary, secondary)
	require.NoError(t, err)

	_, err = fc.Infer(ctx, Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackModelIsPrimary(t *testing.T) {
	fc, err := NewFallback(alwaysSucceed("a"), alwaysFail(errors.New("x")))
	require.NoError(t, err)
	assert.Equal(t, "working", fc.Model())
}
