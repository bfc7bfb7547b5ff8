// Command dimple loads the layered configuration and runs a single LLM
// inference against the chosen provider. It doubles as a smoke test for a
// deployment's configuration, credentials and network path.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dimpleworks/dimple/internal/config"
	"github.com/dimpleworks/dimple/internal/llm"
	"github.com/dimpleworks/dimple/internal/metrics"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "configs/default.properties", "Path to the default properties file")
	overrideFile := flag.String("override", "", "Path to the override properties file (falls back to $OVERRIDE_FILE)")
	secretsFile := flag.String("secrets", "", "Path to the secrets properties file")
	provider := flag.String("provider", "", "LLM provider: openai or anthropic (default from configuration)")
	model := flag.String("model", "", "Model override for this run")
	prompt := flag.String("prompt", "", "Prompt to send; empty skips inference")
	dump := flag.Bool("dump", false, "Dump the resolved public configuration and exit")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flag.Parse()

	cfg, err := config.Load(*configFile, *overrideFile, *secretsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(
		cfg.GetString("log.level", "info"),
		cfg.GetString("log.format", "console"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadSecretsFromVault(ctx, cfg, config.VaultConfigFromEnv()); err != nil {
		log.Warn().Err(err).Msg("Vault secrets unavailable, continuing with file-based secrets")
	}

	if *dump {
		for _, key := range cfg.Keys() {
			source, _ := cfg.Provenance(key)
			fmt.Printf("%s = %s  [%s]\n", key, cfg.GetString(key, ""), source)
		}
		return
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	if *prompt == "" {
		log.Info().Msg("No prompt given, configuration loaded successfully")
		return
	}

	providerName := *provider
	if providerName == "" {
		providerName = cfg.GetString("llm.provider", llm.ProviderOpenAI)
	}

	client, err := llm.New(providerName, llm.Options{
		Model:             *model,
		Config:            cfg,
		Cache:             newCache(cfg),
		RequestsPerMinute: cfg.GetInt("llm.requests_per_minute", 0),
	})
	if err != nil {
		log.Fatal().Err(err).Str("provider", providerName).Msg("Failed to create LLM client")
	}

	resp, err := client.Infer(ctx, llm.Request{Prompt: *prompt})
	if err != nil {
		log.Fatal().Err(err).Msg("Inference failed")
	}

	fmt.Println(resp.Text)
	log.Info().
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Int64("elapsed_ms", resp.ElapsedMS).
		Msg("Done")
}

// newCache wires the optional Redis response cache from configuration.
func newCache(cfg *config.Store) *llm.Cache {
	addr := cfg.GetString("redis.addr", "")
	if addr == "" {
		return nil
	}
	ttl := time.Duration(cfg.GetInt("llm.cache.ttl_seconds", 300)) * time.Second
	return llm.NewCache(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.GetString("redis.password", ""),
		DB:       cfg.GetInt("redis.db", 0),
	}), ttl)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server stopped")
	}
}
