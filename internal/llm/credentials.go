package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Provider-specific credential sources for the resolution chain.
var providerEnvVars = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

var providerKeyFileKeys = map[string]string{
	ProviderOpenAI:    "openai.key.file",
	ProviderAnthropic: "anthropic.key.file",
}

var providerDefaultKeyFiles = map[string]string{
	ProviderOpenAI:    "openai_key_dont_commit.txt",
	ProviderAnthropic: "anthropic_key_dont_commit.txt",
}

// resolveCredential resolves the API key through the strict priority chain:
// explicit key > explicit key file > provider environment variable >
// key file referenced from configuration. Nothing resolving is a
// CredentialError.
func resolveCredential(provider string, o Options) (string, error) {
	if o.APIKey != "" {
		log.Debug().Str("provider", provider).Msg("Using explicitly provided API key")
		return o.APIKey, nil
	}

	if o.KeyFile != "" {
		key, err := readKeyFile(o.KeyFile)
		if err != nil {
			return "", &CredentialError{Provider: provider, Err: fmt.Errorf("key file %s: %w", o.KeyFile, err)}
		}
		log.Debug().Str("provider", provider).Str("key_file", o.KeyFile).Msg("Using API key from key file")
		return key, nil
	}

	if envVar := providerEnvVars[provider]; envVar != "" {
		if key := os.Getenv(envVar); key != "" {
			log.Debug().Str("provider", provider).Str("env_var", envVar).Msg("Using API key from environment")
			return key, nil
		}
	}

	if o.Config != nil {
		path := o.Config.GetString(providerKeyFileKeys[provider], providerDefaultKeyFiles[provider])
		if path != "" {
			if key, err := readKeyFile(path); err == nil {
				log.Debug().Str("provider", provider).Str("key_file", path).Msg("Using API key from configured key file")
				return key, nil
			}
		}
	}

	return "", &CredentialError{Provider: provider}
}

func readKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("key file is empty")
	}
	return key, nil
}
