package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL:    srv.URL,
		Username:   "bot",
		Token:      "tok",
		MaxRetries: 3,
		RetryWait:  10 * time.Second,
	})
	require.NoError(t, err)

	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestSearch(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/search", r.URL.Path)
		assert.Equal(t, "project = OPS", r.URL.Query().Get("jql"))
		assert.Equal(t, "10", r.URL.Query().Get("maxResults"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "bot", user)
		assert.Equal(t, "tok", pass)

		json.NewEncoder(w).Encode(map[string]any{
			"issues": []map[string]any{
				{"id": "100", "key": "OPS-1", "fields": map[string]any{"summary": "first"}},
				{"id": "101", "key": "OPS-2", "fields": map[string]any{"summary": "second"}},
			},
		})
	})

	issues, err := c.Search(context.Background(), "project = OPS", 10)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "OPS-1", issues[0].Key)
	assert.Equal(t, "second", issues[1].Fields["summary"])
}

func TestCreateReturnsKey(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/api/2/issue", r.URL.Path)

		var payload map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "broken build", payload["fields"]["summary"])

		json.NewEncoder(w).Encode(map[string]string{"key": "OPS-7"})
	})

	key, err := c.Create(context.Background(), map[string]any{"summary": "broken build"})
	require.NoError(t, err)
	assert.Equal(t, "OPS-7", key)
}

func TestThrottleHonorsRetryAfter(t *testing.T) {
	var calls int
	c, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.Comment(context.Background(), "OPS-1", "done")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, *slept, 1)
	assert.Equal(t, 3*time.Second, (*slept)[0])
}

func TestThrottleWithoutHeaderUsesDefaultWait(t *testing.T) {
	var calls int
	c, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Transition(context.Background(), "OPS-1", "31"))
	require.Len(t, *slept, 1)
	assert.Equal(t, 10*time.Second, (*slept)[0])
}

func TestServerErrorRetriesGet(t *testing.T) {
	var calls int
	c, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Search(context.Background(), "project = OPS", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2)
}

func TestServerErrorDoesNotRetryWrites(t *testing.T) {
	// A 502 on a write may mean the server already applied it; resubmitting
	// a create could file the issue twice.
	var calls int
	c, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Create(context.Background(), map[string]any{"summary": "dup risk"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)

	calls = 0
	err = c.Update(context.Background(), "OPS-1", map[string]any{"labels": []string{"infra"}})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestClientErrorFailsImmediately(t *testing.T) {
	var calls int
	c, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errorMessages":["no permission"]}`))
	})

	err := c.Link(context.Background(), "Blocks", "OPS-1", "OPS-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}
