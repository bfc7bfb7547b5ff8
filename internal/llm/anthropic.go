package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
)

// AnthropicClient talks to the Anthropic Messages API through the official
// SDK. The Messages API has no structured response format, so the
// ResponseFormat hint is deliberately ignored rather than rejected; callers
// get plain text back regardless of the hint.
type AnthropicClient struct {
	*client
	api anthropic.Client
}

// NewAnthropic creates an Anthropic client. The credential resolves through
// the strict chain (explicit key > key file > ANTHROPIC_API_KEY > configured
// key file); failing that, construction fails with a CredentialError.
func NewAnthropic(o Options) (*AnthropicClient, error) {
	apiKey, err := resolveCredential(ProviderAnthropic, o)
	if err != nil {
		return nil, err
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		// The SDK retries internally by default. Retry policy belongs to
		// the shared executor; one attempt must be one wire request.
		option.WithMaxRetries(0),
	}
	if o.Endpoint != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.Endpoint))
	}

	c := &AnthropicClient{
		api: anthropic.NewClient(reqOpts...),
	}
	c.client = newBase(c, o, "claude-3-5-sonnet-20241022", 4096)

	log.Info().Str("model", c.model).Msg("Anthropic client initialized")
	return c, nil
}

func (c *AnthropicClient) name() string { return ProviderAnthropic }

func (c *AnthropicClient) extraRetryPatterns() []string {
	return []string{"Anthropic API rate limit exceeded"}
}

func (c *AnthropicClient) complete(ctx context.Context, p callParams) (*Response, error) {
	// p.responseFormat is intentionally not forwarded.
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(p.maxTokens),
		Temperature: anthropic.Float(p.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API: %w", err)
	}

	text := ""
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in response")
	}

	return &Response{
		Text:         text,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}
