// Package llm provides a provider-neutral inference client with uniform
// retry semantics.
//
// Every provider adapter satisfies the Client interface: a canonical Request
// in, a canonical Response out. Retry classification, rate limiting, caching
// and timing live in the shared base; adapters only translate to and from
// the provider's native call.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Request is the canonical inference request. Zero or nil fields fall back
// to the client's instance defaults. Temperature and MaxRetries are pointers
// because zero is a meaningful override for both.
type Request struct {
	Prompt string

	Model       string
	Temperature *float64
	MaxTokens   int

	// ResponseFormat is a structured-output hint. Providers that do not
	// support it ignore it rather than fail.
	ResponseFormat map[string]any

	MaxRetries *int
	RetryDelay time.Duration
}

// Response is the canonical inference result. ElapsedMS is stamped by the
// calling layer, never by the provider adapter. Token counts are zero when
// the provider reports no usage.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	ElapsedMS    int64
}

// Client is the uniform call surface over completion providers.
type Client interface {
	// Infer runs one completion with retry on transient failures.
	Infer(ctx context.Context, req Request) (*Response, error)

	// Model returns the client's default model name.
	Model() string
}

// New constructs a client for the named provider.
func New(provider string, opts Options) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAI(opts)
	case ProviderAnthropic:
		return NewAnthropic(opts)
	default:
		return nil, fmt.Errorf("llm: unsupported provider: %s", provider)
	}
}
