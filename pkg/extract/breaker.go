package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/soundprediction/chronicle/pkg/types"
)

// BreakerConfig tunes the circuit breaker around a flaky reasoner.
type BreakerConfig struct {
	MaxRequests      uint32  `json:"max_requests" mapstructure:"max_requests"`
	IntervalSeconds  int     `json:"interval_seconds" mapstructure:"interval_seconds"`
	TimeoutSeconds   int     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	ReadyToTripRatio float64 `json:"ready_to_trip_ratio" mapstructure:"ready_to_trip_ratio"`
}

// DefaultBreakerConfig trips after 60% failures across at least 3 calls and
// probes again after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		IntervalSeconds:  60,
		TimeoutSeconds:   30,
		ReadyToTripRatio: 0.6,
	}
}

// BreakerExtractor wraps an Extractor with circuit breaking so a failing
// reasoner degrades fast instead of stalling every ingestion batch.
type BreakerExtractor struct {
	inner  Extractor
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewBreakerExtractor wraps inner. A nil logger falls back to slog.Default().
func NewBreakerExtractor(inner Extractor, cfg BreakerConfig, logger *slog.Logger) *BreakerExtractor {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        "extractor",
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("extractor circuit breaker state change",
				"name", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerExtractor{
		inner:  inner,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

type factsResult struct {
	entities  []types.EntityFact
	relations []types.RelationFact
}

// ExtractFacts implements Extractor.
func (b *BreakerExtractor) ExtractFacts(ctx context.Context, chunk types.Chunk, gc GraphContext) ([]types.EntityFact, []types.RelationFact, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		entities, relations, err := b.inner.ExtractFacts(ctx, chunk, gc)
		if err != nil {
			return nil, err
		}
		return factsResult{entities: entities, relations: relations}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	r := res.(factsResult)
	return r.entities, r.relations, nil
}

type judgeResult struct {
	entityDecisions   []types.UpdateDecision
	relationDecisions []types.UpdateDecision
}

// JudgeUpdates implements Extractor.
func (b *BreakerExtractor) JudgeUpdates(ctx context.Context, entities []types.EntityFact, relations []types.RelationFact, gc GraphContext) ([]types.UpdateDecision, []types.UpdateDecision, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		ed, rd, err := b.inner.JudgeUpdates(ctx, entities, relations, gc)
		if err != nil {
			return nil, err
		}
		return judgeResult{entityDecisions: ed, relationDecisions: rd}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	r := res.(judgeResult)
	return r.entityDecisions, r.relationDecisions, nil
}

// InferEventTimes implements Extractor.
func (b *BreakerExtractor) InferEventTimes(ctx context.Context, chunk types.Chunk, entities []types.EntityFact, relations []types.RelationFact) (map[string]types.EventTime, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.InferEventTimes(ctx, chunk, entities, relations)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]types.EventTime), nil
}

// UpdateSceneContent implements Extractor.
func (b *BreakerExtractor) UpdateSceneContent(ctx context.Context, current string, chunk types.Chunk) (string, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.UpdateSceneContent(ctx, current, chunk)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

var _ Extractor = (*BreakerExtractor)(nil)
