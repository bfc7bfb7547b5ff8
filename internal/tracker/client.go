// Package tracker is a thin client for a Jira-style issue tracker REST API.
//
// Every operation is a single blocking request/response call; the caller
// builds the field payloads. No tracker domain modeling happens here.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 5
	defaultRetryWait  = 30 * time.Second
)

// Options configures a tracker client.
type Options struct {
	// BaseURL is the tracker root, e.g. "https://jira.example.com".
	BaseURL  string
	Username string
	Token    string

	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
}

// Client issues REST calls against the tracker.
type Client struct {
	baseURL    string
	username   string
	token      string
	httpc      *http.Client
	maxRetries int
	retryWait  time.Duration

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Issue is the generic issue shape returned by the tracker.
type Issue struct {
	ID     string         `json:"id"`
	Key    string         `json:"key"`
	Fields map[string]any `json:"fields"`
}

// New creates a tracker client.
func New(o Options) (*Client, error) {
	if o.BaseURL == "" {
		return nil, fmt.Errorf("tracker: base URL is required")
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.RetryWait <= 0 {
		o.RetryWait = defaultRetryWait
	}

	return &Client{
		baseURL:    o.BaseURL,
		username:   o.Username,
		token:      o.Token,
		httpc:      &http.Client{Timeout: o.Timeout},
		maxRetries: o.MaxRetries,
		retryWait:  o.RetryWait,
		sleep:      sleepContext,
	}, nil
}

// Search runs a JQL-style query and returns matching issues.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Issue, error) {
	q := url.Values{}
	q.Set("jql", query)
	if maxResults > 0 {
		q.Set("maxResults", strconv.Itoa(maxResults))
	}

	var result struct {
		Issues []Issue `json:"issues"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/rest/api/2/search?"+q.Encode(), nil, &result); err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}
	return result.Issues, nil
}

// Create creates an issue from the given fields and returns its key.
func (c *Client) Create(ctx context.Context, fields map[string]any) (string, error) {
	var result struct {
		Key string `json:"key"`
	}
	payload := map[string]any{"fields": fields}
	if err := c.doJSON(ctx, http.MethodPost, "/rest/api/2/issue", payload, &result); err != nil {
		return "", fmt.Errorf("creating issue: %w", err)
	}
	return result.Key, nil
}

// Update replaces fields on an existing issue.
func (c *Client) Update(ctx context.Context, key string, fields map[string]any) error {
	payload := map[string]any{"fields": fields}
	if err := c.doJSON(ctx, http.MethodPut, "/rest/api/2/issue/"+url.PathEscape(key), payload, nil); err != nil {
		return fmt.Errorf("updating issue %s: %w", key, err)
	}
	return nil
}

// Transition moves an issue through a workflow transition.
func (c *Client) Transition(ctx context.Context, key, transitionID string) error {
	payload := map[string]any{
		"transition": map[string]any{"id": transitionID},
	}
	if err := c.doJSON(ctx, http.MethodPost, "/rest/api/2/issue/"+url.PathEscape(key)+"/transitions", payload, nil); err != nil {
		return fmt.Errorf("transitioning issue %s: %w", key, err)
	}
	return nil
}

// Comment adds a comment to an issue.
func (c *Client) Comment(ctx context.Context, key, body string) error {
	payload := map[string]any{"body": body}
	if err := c.doJSON(ctx, http.MethodPost, "/rest/api/2/issue/"+url.PathEscape(key)+"/comment", payload, nil); err != nil {
		return fmt.Errorf("commenting on issue %s: %w", key, err)
	}
	return nil
}

// Link relates two issues with the named link type.
func (c *Client) Link(ctx context.Context, linkType, inwardKey, outwardKey string) error {
	payload := map[string]any{
		"type":         map[string]any{"name": linkType},
		"inwardIssue":  map[string]any{"key": inwardKey},
		"outwardIssue": map[string]any{"key": outwardKey},
	}
	if err := c.doJSON(ctx, http.MethodPost, "/rest/api/2/issueLink", payload, nil); err != nil {
		return fmt.Errorf("linking %s to %s: %w", inwardKey, outwardKey, err)
	}
	return nil
}

// doJSON performs one REST call. Throttled responses honor the Retry-After
// header for every method; transport errors and server errors are retried
// for GET only, since a failed write may still have been applied and a
// resubmit would duplicate it. Client errors fail immediately.
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}
	retriable := method == http.MethodGet

	for attempt := 1; ; attempt++ {
		body, status, err := c.roundTrip(ctx, method, path, payload)
		switch {
		case err != nil:
			if !retriable || attempt >= c.maxRetries {
				return err
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("Tracker request failed, retrying")
			if err := c.sleep(ctx, c.retryWait); err != nil {
				return err
			}

		case status == http.StatusTooManyRequests:
			if attempt >= c.maxRetries {
				return fmt.Errorf("throttled after %d attempts (status %d)", attempt, status)
			}
			wait := c.retryAfter(body.header)
			log.Warn().
				Int("attempt", attempt).
				Dur("retry_after", wait).
				Msg("Tracker throttled request, honoring Retry-After")
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}

		case status >= 500:
			if !retriable {
				return fmt.Errorf("server error (status %d): %s", status, body.data)
			}
			if attempt >= c.maxRetries {
				return fmt.Errorf("server error after %d attempts (status %d): %s", attempt, status, body.data)
			}
			log.Warn().Int("status", status).Int("attempt", attempt).Msg("Tracker server error, retrying")
			if err := c.sleep(ctx, c.retryWait); err != nil {
				return err
			}

		case status >= 400:
			return fmt.Errorf("tracker API error (status %d): %s", status, body.data)

		default:
			if respBody == nil || len(body.data) == 0 {
				return nil
			}
			if err := json.Unmarshal(body.data, respBody); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			return nil
		}
	}
}

type responseData struct {
	data   []byte
	header http.Header
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (responseData, int, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return responseData{}, 0, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" || c.token != "" {
		req.SetBasicAuth(c.username, c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return responseData{}, 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return responseData{}, 0, fmt.Errorf("reading response: %w", err)
	}
	return responseData{data: data, header: resp.Header}, resp.StatusCode, nil
}

func (c *Client) retryAfter(header http.Header) time.Duration {
	if header == nil {
		return c.retryWait
	}
	if secs, err := strconv.Atoi(header.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return c.retryWait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
