package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFactory(t *testing.T) {
	c, err := New(ProviderOpenAI, Options{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)
	assert.Equal(t, "gpt-4o", c.Model())

	c, err = New(ProviderAnthropic, Options{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)
	assert.Equal(t, "claude-3-5-sonnet-20241022", c.Model())

	_, err = New("mistral", Options{APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestNewFactoryPropagatesCredentialError(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New(ProviderOpenAI, Options{})
	require.Error(t, err)

	var credErr *CredentialError
	assert.ErrorAs(t, err, &credErr)
}

func TestConfigDefaultsApplied(t *testing.T) {
	cfg := loadConfig(t, `
openai.model = gpt-4o-mini
openai.retry.delay = 5
openai.max.retries = 2
llm.max_response_tokens = 512
`)

	c, err := NewOpenAI(Options{APIKey: "k", Config: cfg})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", c.Model())
	assert.Equal(t, 5*time.Second, c.retryDelay)
	assert.Equal(t, 2, c.maxRetries)
	assert.Equal(t, 512, c.maxTokens)
}

func TestOptionsBeatConfig(t *testing.T) {
	cfg := loadConfig(t, "openai.model = gpt-4o-mini\n")

	c, err := NewOpenAI(Options{APIKey: "k", Model: "gpt-4.1", Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", c.Model())
}

func TestProviderMaxTokensBeatsGlobal(t *testing.T) {
	cfg := loadConfig(t, `
llm.max_response_tokens = 512
anthropic.max.response_tokens = 1024
`)

	c, err := NewAnthropic(Options{APIKey: "k", Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, 1024, c.maxTokens)
}
