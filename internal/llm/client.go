package llm

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dimpleworks/dimple/internal/config"
	"github.com/dimpleworks/dimple/internal/metrics"
	"github.com/dimpleworks/dimple/internal/retry"
)

// Options configures a provider client. Unset fields fall back to values
// from Config (when given) and then to provider defaults.
type Options struct {
	// Credential sources, in resolution order.
	APIKey  string
	KeyFile string

	Model       string
	Temperature float64
	MaxTokens   int

	MaxRetries int
	RetryDelay time.Duration

	// Endpoint overrides the provider base URL. For the OpenAI-compatible
	// client this is the full chat completions URL.
	Endpoint string
	Timeout  time.Duration

	// RequestsPerMinute enables client-side rate limiting when positive.
	RequestsPerMinute int

	// Config supplies instance defaults ("<provider>.model" and friends)
	// and the configured key file for the credential chain.
	Config *config.Store

	// Cache serves repeated requests without a provider round trip.
	Cache *Cache
}

const (
	defaultRetryDelay      = 60 * time.Second
	defaultMaxRetries      = 5
	defaultProviderTimeout = 2 * time.Minute
	globalMaxTokensKey     = "llm.max_response_tokens"
)

// transport is the provider-specific side of a client: translate an
// effective request into the native call and the native result back into a
// canonical Response. Implementations are stateless per call.
type transport interface {
	name() string

	// extraRetryPatterns extends the default retryable classification with
	// provider-specific messages.
	extraRetryPatterns() []string

	complete(ctx context.Context, p callParams) (*Response, error)
}

// callParams is the effective per-call parameter set after overlaying the
// request onto instance defaults.
type callParams struct {
	model          string
	prompt         string
	temperature    float64
	maxTokens      int
	responseFormat map[string]any
}

// client carries the provider-neutral machinery shared by all adapters.
type client struct {
	transport   transport
	model       string
	temperature float64
	maxTokens   int
	retryDelay  time.Duration
	maxRetries  int
	limiter     *rate.Limiter
	cache       *Cache
	initialized bool
}

// newBase builds the shared client state, overlaying configuration defaults
// onto the options. The provider's configuration keys are
// "<provider>.model", "<provider>.retry.delay" (seconds),
// "<provider>.max.retries" and "<provider>.max.response_tokens".
func newBase(t transport, o Options, defaultModel string, defaultMaxTokens int) *client {
	provider := t.name()

	model := o.Model
	retryDelay := o.RetryDelay
	maxRetries := o.MaxRetries
	maxTokens := o.MaxTokens

	if o.Config != nil {
		if model == "" {
			model = o.Config.GetString(provider+".model", defaultModel)
		}
		if retryDelay <= 0 {
			if secs := o.Config.GetInt(provider+".retry.delay", 0); secs > 0 {
				retryDelay = time.Duration(secs) * time.Second
			}
		}
		if maxRetries <= 0 {
			maxRetries = o.Config.GetInt(provider+".max.retries", 0)
		}
		if maxTokens <= 0 {
			maxTokens = o.Config.GetInt(provider+".max.response_tokens",
				o.Config.GetInt(globalMaxTokensKey, 0))
		}
	}
	if model == "" {
		model = defaultModel
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var limiter *rate.Limiter
	if o.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(o.RequestsPerMinute)), 1)
	}

	return &client{
		transport:   t,
		model:       model,
		temperature: o.Temperature,
		maxTokens:   maxTokens,
		retryDelay:  retryDelay,
		maxRetries:  maxRetries,
		limiter:     limiter,
		cache:       o.Cache,
		initialized: true,
	}
}

// Model returns the client's default model name.
func (c *client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// effectiveCall overlays per-call overrides onto instance defaults.
func (c *client) effectiveCall(req Request) (callParams, int, time.Duration) {
	p := callParams{
		model:          c.model,
		prompt:         req.Prompt,
		temperature:    c.temperature,
		maxTokens:      c.maxTokens,
		responseFormat: req.ResponseFormat,
	}
	if req.Model != "" {
		p.model = req.Model
	}
	if req.Temperature != nil {
		p.temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		p.maxTokens = req.MaxTokens
	}

	maxRetries := c.maxRetries
	if req.MaxRetries != nil && *req.MaxRetries > 0 {
		maxRetries = *req.MaxRetries
	}
	retryDelay := c.retryDelay
	if req.RetryDelay > 0 {
		retryDelay = req.RetryDelay
	}
	return p, maxRetries, retryDelay
}

// Infer runs one completion under the retry budget. Each attempt is timed
// individually; the returned ElapsedMS covers the successful attempt only.
func (c *client) Infer(ctx context.Context, req Request) (*Response, error) {
	if c == nil || !c.initialized {
		return nil, ErrNotInitialized
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	provider := c.transport.name()
	p, maxRetries, retryDelay := c.effectiveCall(req)

	logger := log.With().
		Str("component", "llm").
		Str("provider", provider).
		Str("model", p.model).
		Str("request_id", uuid.NewString()).
		Logger()

	cacheKey := ""
	if c.cache != nil {
		cacheKey = cacheRequestKey(provider, p)
		if resp, ok := c.cache.Get(ctx, cacheKey); ok {
			metrics.CacheHits.WithLabelValues(provider).Inc()
			logger.Debug().Msg("Inference served from cache")
			return resp, nil
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	patterns := append(append([]string{}, retry.DefaultPatterns...), c.transport.extraRetryPatterns()...)
	exec := retry.New(retry.Config{
		MaxAttempts: maxRetries,
		Delay:       retryDelay,
		Patterns:    patterns,
		OnRetry: func(attempt int, err error) {
			metrics.InferenceRetries.WithLabelValues(provider).Inc()
		},
	})

	var resp *Response
	overall := time.Now()
	err := exec.Do(ctx, "llm inference", func() error {
		start := time.Now()
		r, err := c.transport.complete(ctx, p)
		if err != nil {
			return err
		}
		r.ElapsedMS = time.Since(start).Milliseconds()
		resp = r
		return nil
	})

	metrics.InferenceDuration.WithLabelValues(provider).Observe(time.Since(overall).Seconds())
	metrics.InferenceRequests.WithLabelValues(provider, metrics.NormalizeOutcome(err)).Inc()

	if err != nil {
		logger.Error().Err(err).Msg("Inference failed")
		return nil, err
	}

	metrics.InferenceTokens.WithLabelValues(provider, metrics.DirectionInput).Add(float64(resp.InputTokens))
	metrics.InferenceTokens.WithLabelValues(provider, metrics.DirectionOutput).Add(float64(resp.OutputTokens))

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, resp); err != nil {
			logger.Debug().Err(err).Msg("Failed to store inference response in cache")
		}
	}

	logger.Info().
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Int64("elapsed_ms", resp.ElapsedMS).
		Msg("Inference completed")

	return resp, nil
}
