package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const cacheOpTimeout = 500 * time.Millisecond

// Cache stores inference responses in Redis keyed by a hash of the effective
// request. Cache failures degrade to misses, never to errors.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

type cacheEntry struct {
	Text         string    `json:"text"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	ElapsedMS    int64     `json:"elapsed_ms"`
	CachedAt     time.Time `json:"cached_at"`
}

// NewCache creates a response cache. A nil Redis client returns nil, which
// disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// cacheRequestKey hashes the full effective request so any parameter change
// misses the cache.
func cacheRequestKey(provider string, p callParams) string {
	format, _ := json.Marshal(p.responseFormat)
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%.4f|%d|%s|%s",
		provider, p.model, p.temperature, p.maxTokens, p.prompt, format))
	return "dimple:llm:" + hex.EncodeToString(h[:])
}

// Get retrieves a cached response, reporting false on miss or any error.
func (c *Cache) Get(ctx context.Context, key string) (*Response, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	cached, err := c.client.Get(opCtx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("Redis get error, treating as cache miss")
		}
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached response")
		return nil, false
	}

	return &Response{
		Text:         entry.Text,
		InputTokens:  entry.InputTokens,
		OutputTokens: entry.OutputTokens,
		ElapsedMS:    entry.ElapsedMS,
	}, true
}

// Set stores a response with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, resp *Response) error {
	if c == nil || c.client == nil || resp == nil {
		return nil
	}

	entry := cacheEntry{
		Text:         resp.Text,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		ElapsedMS:    resp.ElapsedMS,
		CachedAt:     time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	if err := c.client.Set(opCtx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}
