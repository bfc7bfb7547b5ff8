package config

import (
	"context"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// VaultConfig holds connection settings for the optional HashiCorp Vault
// secret source.
type VaultConfig struct {
	Enabled    bool
	Address    string
	Token      string
	AuthMethod string // "token", "kubernetes", "approle"
	MountPath  string // KV mount path, default "secret"
	SecretPath string // base path for dimple secrets, e.g. "dimple/production"
	KVVersion  int    // KV engine version, 1 or 2, default 2
	Namespace  string // Vault Enterprise namespace
}

// VaultConfigFromEnv builds a VaultConfig from VAULT_* environment variables.
// Vault is disabled unless VAULT_ENABLED=true.
func VaultConfigFromEnv() VaultConfig {
	if os.Getenv("VAULT_ENABLED") != "true" {
		return VaultConfig{Enabled: false}
	}

	kvVersion := 2
	if os.Getenv("VAULT_KV_VERSION") == "1" {
		kvVersion = 1
	}

	return VaultConfig{
		Enabled:    true,
		Address:    getEnvOrDefault("VAULT_ADDR", "http://localhost:8200"),
		Token:      os.Getenv("VAULT_TOKEN"),
		AuthMethod: getEnvOrDefault("VAULT_AUTH_METHOD", "token"),
		MountPath:  getEnvOrDefault("VAULT_MOUNT_PATH", "secret"),
		SecretPath: getEnvOrDefault("VAULT_SECRET_PATH", "dimple/production"),
		KVVersion:  kvVersion,
		Namespace:  os.Getenv("VAULT_NAMESPACE"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// VaultClient wraps the HashiCorp Vault client for secret loading.
type VaultClient struct {
	client *vault.Client
	config VaultConfig
}

// NewVaultClient creates and authenticates a Vault client.
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("vault is not enabled in configuration")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	switch cfg.AuthMethod {
	case "token", "":
		if cfg.Token == "" {
			cfg.Token = os.Getenv("VAULT_TOKEN")
		}
		if cfg.Token == "" {
			return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
		}
		client.SetToken(cfg.Token)

	case "kubernetes":
		if err := authenticateKubernetes(client); err != nil {
			return nil, fmt.Errorf("kubernetes authentication failed: %w", err)
		}

	case "approle":
		if err := authenticateAppRole(client); err != nil {
			return nil, fmt.Errorf("AppRole authentication failed: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported Vault auth method: %s", cfg.AuthMethod)
	}

	log.Info().
		Str("address", cfg.Address).
		Str("auth_method", cfg.AuthMethod).
		Str("secret_path", cfg.SecretPath).
		Msg("Vault client initialized")

	return &VaultClient{client: client, config: cfg}, nil
}

// secretReadPath builds the logical read path for the configured KV engine
// version: v2 inserts the "data" segment after the mount, v1 does not.
func (vc *VaultClient) secretReadPath(path string) string {
	if vc.config.KVVersion == 1 {
		return fmt.Sprintf("%s/%s/%s", vc.config.MountPath, vc.config.SecretPath, path)
	}
	return fmt.Sprintf("%s/data/%s/%s", vc.config.MountPath, vc.config.SecretPath, path)
}

// GetSecret reads the secret at path, relative to the configured SecretPath,
// using the KV v1 or v2 layout per VaultConfig.KVVersion.
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := vc.secretReadPath(path)

	secret, err := vc.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", fullPath)
	}

	if vc.config.KVVersion != 1 {
		data, ok := secret.Data["data"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected KV v2 response shape at path: %s", fullPath)
		}
		return data, nil
	}
	return secret.Data, nil
}

// LoadSecretsFromVault merges Vault KV secrets into the store's private
// secret view. Values never touch the public store. A disabled Vault config
// is a no-op.
func LoadSecretsFromVault(ctx context.Context, store *Store, cfg VaultConfig) error {
	if !cfg.Enabled {
		log.Info().Msg("Vault integration disabled, using file-based secrets only")
		return nil
	}

	vc, err := NewVaultClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create Vault client: %w", err)
	}

	data, err := vc.GetSecret(ctx, "llm")
	if err != nil {
		return err
	}

	loaded := 0
	for key, raw := range data {
		value, ok := raw.(string)
		if !ok || value == "" {
			log.Warn().Str("key", key).Msg("Skipping non-string Vault secret value")
			continue
		}
		store.setSecret(key, value)
		loaded++
	}

	log.Info().Int("keys", loaded).Msg("Secrets loaded from Vault")
	return nil
}

func authenticateKubernetes(client *vault.Client) error {
	jwtPath := "/var/run/secrets/kubernetes.io/serviceaccount/token"
	jwt, err := os.ReadFile(jwtPath)
	if err != nil {
		return fmt.Errorf("failed to read service account token: %w", err)
	}

	role := getEnvOrDefault("VAULT_K8S_ROLE", "dimple")

	secret, err := client.Logical().Write("auth/kubernetes/login", map[string]interface{}{
		"jwt":  string(jwt),
		"role": role,
	})
	if err != nil {
		return fmt.Errorf("failed to login with Kubernetes auth: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return fmt.Errorf("kubernetes authentication returned no token")
	}

	client.SetToken(secret.Auth.ClientToken)
	return nil
}

func authenticateAppRole(client *vault.Client) error {
	roleID := os.Getenv("VAULT_ROLE_ID")
	secretID := os.Getenv("VAULT_SECRET_ID")
	if roleID == "" || secretID == "" {
		return fmt.Errorf("VAULT_ROLE_ID and VAULT_SECRET_ID must be set for AppRole authentication")
	}

	secret, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return fmt.Errorf("failed to login with AppRole: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return fmt.Errorf("AppRole authentication returned no token")
	}

	client.SetToken(secret.Auth.ClientToken)
	return nil
}
