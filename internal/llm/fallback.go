package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Circuit breaker thresholds for provider failover. Longer open timeout than
// usual because model backends tend to recover slowly.
const (
	breakerMinRequests     uint32 = 3
	breakerFailureRatio           = 0.6
	breakerOpenTimeout            = 60 * time.Second
	breakerHalfOpenMaxReqs uint32 = 2
	breakerCountInterval          = 10 * time.Second
)

// FallbackClient fails over between providers in order. Each underlying
// client sits behind its own circuit breaker; an open circuit skips the
// provider without issuing a request.
type FallbackClient struct {
	clients  []Client
	breakers []*gobreaker.CircuitBreaker
}

// NewFallback builds a failover chain from the given clients, primary first.
func NewFallback(clients ...Client) (*FallbackClient, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("llm: fallback chain needs at least one client")
	}

	breakers := make([]*gobreaker.CircuitBreaker, len(clients))
	for i, c := range clients {
		name := fmt.Sprintf("llm-%d-%s", i, c.Model())
		breakers[i] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: breakerHalfOpenMaxReqs,
			Interval:    breakerCountInterval,
			Timeout:     breakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= breakerMinRequests && failureRatio >= breakerFailureRatio
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Provider circuit breaker state changed")
			},
		})
	}

	return &FallbackClient{clients: clients, breakers: breakers}, nil
}

// Model returns the primary client's model name.
func (fc *FallbackClient) Model() string {
	return fc.clients[0].Model()
}

// Infer tries each provider in order until one succeeds. Context
// cancellation stops the chain immediately; other failures move on to the
// next provider.
func (fc *FallbackClient) Infer(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for i, c := range fc.clients {
		result, err := fc.breakers[i].Execute(func() (interface{}, error) {
			return c.Infer(ctx, req)
		})
		if err == nil {
			if i > 0 {
				log.Info().
					Str("model", c.Model()).
					Int("provider_index", i).
					Msg("Inference served by fallback provider")
			}
			return result.(*Response), nil
		}

		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().
				Str("model", c.Model()).
				Msg("Circuit breaker open, skipping provider")
			continue
		}
		if ctx.Err() != nil {
			return nil, err
		}

		log.Warn().
			Err(err).
			Str("model", c.Model()).
			Int("provider_index", i).
			Msg("Inference failed, trying next provider")
	}

	return nil, fmt.Errorf("llm: all providers failed, last error: %w", lastErr)
}
