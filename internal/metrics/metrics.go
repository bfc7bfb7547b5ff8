// Package metrics exposes Prometheus metrics for LLM inference.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dimpleworks/dimple/internal/retry"
)

// Bounded cardinality constants for metric labels. Outcomes must stay a
// closed set so label values cannot grow without bound.
const (
	OutcomeSuccess   = "success"
	OutcomeExhausted = "retry_exhausted"
	OutcomeError     = "error"
	OutcomeCanceled  = "canceled"

	DirectionInput  = "input"
	DirectionOutput = "output"
)

// NormalizeOutcome maps an inference result to the bounded outcome set.
func NormalizeOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return OutcomeExhausted
		}
		return OutcomeError
	}
}

// Inference metrics
var (
	InferenceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dimple_llm_requests_total",
		Help: "Total LLM inference requests by provider and outcome",
	}, []string{"provider", "outcome"})

	InferenceRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dimple_llm_retries_total",
		Help: "Total retry sleeps performed during LLM inference",
	}, []string{"provider"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dimple_llm_request_duration_seconds",
		Help:    "Wall-clock duration of LLM inference calls, retries included",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"provider"})

	InferenceTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dimple_llm_tokens_total",
		Help: "Total tokens reported by providers, by direction",
	}, []string{"provider", "direction"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dimple_llm_cache_hits_total",
		Help: "Inference responses served from the response cache",
	}, []string{"provider"})
)

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
