package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIClient talks to the OpenAI chat completions API, or any
// OpenAI-compatible gateway via Options.Endpoint. It passes the structured
// response format hint through to the provider.
type OpenAIClient struct {
	*client
	endpoint string
	apiKey   string
	httpc    *http.Client
}

// NewOpenAI creates an OpenAI-compatible client. The credential resolves
// through the strict chain (explicit key > key file > OPENAI_API_KEY >
// configured key file); failing that, construction fails with a
// CredentialError and no client is returned.
func NewOpenAI(o Options) (*OpenAIClient, error) {
	apiKey, err := resolveCredential(ProviderOpenAI, o)
	if err != nil {
		return nil, err
	}

	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}

	c := &OpenAIClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: timeout},
	}
	c.client = newBase(c, o, "gpt-4o", 4096)

	log.Info().Str("model", c.model).Msg("OpenAI client initialized")
	return c, nil
}

func (c *OpenAIClient) name() string { return ProviderOpenAI }

func (c *OpenAIClient) extraRetryPatterns() []string { return nil }

func (c *OpenAIClient) complete(ctx context.Context, p callParams) (*Response, error) {
	request := chatRequest{
		Model:          p.model,
		Messages:       []chatMessage{{Role: "user", Content: p.prompt}},
		Temperature:    p.temperature,
		MaxTokens:      p.maxTokens,
		ResponseFormat: p.responseFormat,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp chatErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil || errResp.Error.Message == "" {
			return nil, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(respBody))
		}
		return nil, fmt.Errorf("openai API error: %s", errResp.Error.Message)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &Response{
		Text:         chatResp.Choices[0].Message.Content,
		InputTokens:  chatResp.Usage.PromptTokens,
		OutputTokens: chatResp.Usage.CompletionTokens,
	}, nil
}
