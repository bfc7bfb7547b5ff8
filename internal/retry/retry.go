// Package retry executes operations with classification-driven retries.
//
// Failures are classified against a substring pattern list; retryable
// failures sleep a fixed delay and retry until the attempt budget is spent,
// non-retryable failures propagate immediately. The loop is an explicit
// state machine so the contract is testable with an injected sleep.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// State is a phase of the retry loop.
type State int

const (
	StateAttempting State = iota
	StateSleeping
	StateSucceeded
	StateExhausted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateSleeping:
		return "sleeping"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultPatterns matches the transient provider failures worth retrying.
// Substring classification against provider error messages is a known
// fragility; providers that expose structured errors should append their own
// patterns until transports classify errors by type.
var DefaultPatterns = []string{
	"Rate limit reached for",
	"Read timed out",
	"Connection reset by peer",
	"The server is overloaded or not ready yet",
}

const (
	defaultMaxAttempts = 5
	defaultDelay       = 60 * time.Second
)

// Config configures an Executor.
type Config struct {
	// MaxAttempts is the total attempt budget, including the first call.
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration

	// Patterns classifies retryable errors. Defaults to DefaultPatterns.
	Patterns []string

	// Sleep waits between attempts. Defaults to a context-aware wait.
	// Injectable so tests run without real timers.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry, if set, is called before each sleep with the attempt number
	// that just failed and its error.
	OnRetry func(attempt int, err error)
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Delay <= 0 {
		c.Delay = defaultDelay
	}
	if c.Patterns == nil {
		c.Patterns = DefaultPatterns
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	return c
}

// ExhaustedError wraps the last retryable cause after the attempt budget is
// spent.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Retryable reports whether err matches any of the given patterns. A nil
// pattern list uses DefaultPatterns.
func Retryable(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	if patterns == nil {
		patterns = DefaultPatterns
	}
	msg := err.Error()
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Executor runs operations under a retry budget.
type Executor struct {
	cfg Config
}

// New creates an Executor, applying defaults for unset fields.
func New(cfg Config) *Executor {
	return &Executor{cfg: cfg.withDefaults()}
}

// Do runs op until it succeeds, fails non-retryably, or exhausts the attempt
// budget. Context cancellation aborts between attempts and during sleeps.
func (e *Executor) Do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	attempt := 0
	state := StateAttempting

	for {
		switch state {
		case StateAttempting:
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%s cancelled: %w", op, err)
			}
			attempt++
			err := fn()
			switch {
			case err == nil:
				state = StateSucceeded
			case !Retryable(err, e.cfg.Patterns):
				lastErr = err
				state = StateFailed
			case attempt >= e.cfg.MaxAttempts:
				lastErr = err
				state = StateExhausted
			default:
				lastErr = err
				state = StateSleeping
			}

		case StateSleeping:
			log.Warn().
				Err(lastErr).
				Str("op", op).
				Int("attempt", attempt).
				Int("max_attempts", e.cfg.MaxAttempts).
				Dur("delay", e.cfg.Delay).
				Msg("Retryable failure, sleeping before next attempt")
			if e.cfg.OnRetry != nil {
				e.cfg.OnRetry(attempt, lastErr)
			}
			if err := e.cfg.Sleep(ctx, e.cfg.Delay); err != nil {
				return fmt.Errorf("%s cancelled during retry delay: %w", op, err)
			}
			state = StateAttempting

		case StateSucceeded:
			if attempt > 1 {
				log.Info().
					Str("op", op).
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return nil

		case StateFailed:
			log.Debug().
				Err(lastErr).
				Str("op", op).
				Msg("Error is not retryable, aborting")
			return lastErr

		case StateExhausted:
			return &ExhaustedError{Op: op, Attempts: attempt, Err: lastErr}
		}
	}
}

// sleepContext blocks only the calling goroutine and honors cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
