package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimpleworks/dimple/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func loadConfig(t *testing.T, content string) *config.Store {
	t.Helper()
	s, err := config.Load(writeFile(t, "default.properties", content), "", "")
	require.NoError(t, err)
	return s
}

func TestResolveCredentialExplicitKeyWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	keyFile := writeFile(t, "key.txt", "from-file")

	key, err := resolveCredential(ProviderOpenAI, Options{APIKey: "explicit", KeyFile: keyFile})
	require.NoError(t, err)
	assert.Equal(t, "explicit", key)
}

func TestResolveCredentialKeyFileBeatsEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	keyFile := writeFile(t, "key.txt", "  from-file  \n")

	key, err := resolveCredential(ProviderOpenAI, Options{KeyFile: keyFile})
	require.NoError(t, err)
	assert.Equal(t, "from-file", key)
}

func TestResolveCredentialExplicitKeyFileErrorIsFatal(t *testing.T) {
	// A broken explicit key file must not silently fall through to the
	// environment.
	t.Setenv("OPENAI_API_KEY", "from-env")

	_, err := resolveCredential(ProviderOpenAI, Options{KeyFile: "/nonexistent/key.txt"})
	require.Error(t, err)

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, ProviderOpenAI, credErr.Provider)
}

func TestResolveCredentialEmptyKeyFile(t *testing.T) {
	keyFile := writeFile(t, "key.txt", "   \n")
	_, err := resolveCredential(ProviderAnthropic, Options{KeyFile: keyFile})
	require.Error(t, err)
}

func TestResolveCredentialFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	key, err := resolveCredential(ProviderAnthropic, Options{})
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
}

func TestResolveCredentialConfiguredKeyFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	keyFile := writeFile(t, "key.txt", "configured-key")
	cfg := loadConfig(t, "openai.key.file="+keyFile+"\n")

	key, err := resolveCredential(ProviderOpenAI, Options{Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, "configured-key", key)
}

func TestResolveCredentialNothingResolves(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := resolveCredential(ProviderOpenAI, Options{})
	require.Error(t, err)

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, ProviderOpenAI, credErr.Provider)
}
