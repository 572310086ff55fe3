package extract

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/soundprediction/chronicle/pkg/types"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int
	// InitialDelay is the initial delay before the first retry (default: 1 second)
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries (default: 60 seconds)
	MaxDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff (default: 2.0)
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryExtractor wraps an Extractor with exponential backoff on transient
// failures. Stack it inside a BreakerExtractor so the breaker counts whole
// retry sequences, not individual attempts.
type RetryExtractor struct {
	inner  Extractor
	config *RetryConfig
}

// NewRetryExtractor creates the wrapper.
func NewRetryExtractor(inner Extractor, config *RetryConfig) *RetryExtractor {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 60 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	return &RetryExtractor{inner: inner, config: config}
}

// ExtractFacts implements Extractor with retries.
func (r *RetryExtractor) ExtractFacts(ctx context.Context, chunk types.Chunk, gc GraphContext) ([]types.EntityFact, []types.RelationFact, error) {
	var entities []types.EntityFact
	var relations []types.RelationFact
	err := r.do(ctx, func() error {
		var err error
		entities, relations, err = r.inner.ExtractFacts(ctx, chunk, gc)
		return err
	})
	return entities, relations, err
}

// JudgeUpdates implements Extractor with retries.
func (r *RetryExtractor) JudgeUpdates(ctx context.Context, entities []types.EntityFact, relations []types.RelationFact, gc GraphContext) ([]types.UpdateDecision, []types.UpdateDecision, error) {
	var entityDecisions, relationDecisions []types.UpdateDecision
	err := r.do(ctx, func() error {
		var err error
		entityDecisions, relationDecisions, err = r.inner.JudgeUpdates(ctx, entities, relations, gc)
		return err
	})
	return entityDecisions, relationDecisions, err
}

// InferEventTimes implements Extractor with retries.
func (r *RetryExtractor) InferEventTimes(ctx context.Context, chunk types.Chunk, entities []types.EntityFact, relations []types.RelationFact) (map[string]types.EventTime, error) {
	var eventTimes map[string]types.EventTime
	err := r.do(ctx, func() error {
		var err error
		eventTimes, err = r.inner.InferEventTimes(ctx, chunk, entities, relations)
		return err
	})
	return eventTimes, err
}

// UpdateSceneContent implements Extractor with retries.
func (r *RetryExtractor) UpdateSceneContent(ctx context.Context, current string, chunk types.Chunk) (string, error) {
	var scene string
	err := r.do(ctx, func() error {
		var err error
		scene, err = r.inner.UpdateSceneContent(ctx, current, chunk)
		return err
	})
	return scene, err
}

func (r *RetryExtractor) do(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.delay(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}

		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return err
		}
	}
	return fmt.Errorf("failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

// delay computes the backoff for an attempt, capped at MaxDelay.
func (r *RetryExtractor) delay(attempt int) time.Duration {
	d := time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1)))
	if d > r.config.MaxDelay {
		d = r.config.MaxDelay
	}
	return d
}

// isRetryableError reports whether the error looks transient: rate limits,
// timeouts, and upstream overload. Malformed payloads are not retried; the
// same prompt will fail the same way.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit",
		"429",
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"502",
		"503",
		"504",
		"overloaded",
		"temporarily unavailable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var _ Extractor = (*RetryExtractor)(nil)
