// Package extract defines the contract for the external reasoning
// collaborator: the capability that turns raw text into entity and relation
// facts, update decisions, and event times. The core store implements none
// of this; it consumes the outputs as opaque, pre-judged inputs.
package extract

import (
	"context"

	"github.com/soundprediction/chronicle/pkg/types"
)

// GraphContext is what the reasoner sees of the current graph when judging
// a chunk: the active scene snapshot and candidate entities already stored.
type GraphContext struct {
	SceneContent      string                 `json:"scene_content,omitempty"`
	CandidateEntities []*types.EntityVersion `json:"candidate_entities,omitempty"`
}

// Extractor is the required external capability. Implementations are
// expected to be high-latency (an LLM, a remote service); callers must never
// invoke them while holding a commit-side lock.
type Extractor interface {
	// ExtractFacts returns entity and relation facts found in the chunk.
	ExtractFacts(ctx context.Context, chunk types.Chunk, gc GraphContext) ([]types.EntityFact, []types.RelationFact, error)

	// JudgeUpdates attaches one decision per fact, judged against the
	// candidate entities in the context.
	JudgeUpdates(ctx context.Context, entities []types.EntityFact, relations []types.RelationFact, gc GraphContext) (entityDecisions, relationDecisions []types.UpdateDecision, err error)

	// InferEventTimes estimates narrative anchors, keyed by fact id.
	InferEventTimes(ctx context.Context, chunk types.Chunk, entities []types.EntityFact, relations []types.RelationFact) (map[string]types.EventTime, error)

	// UpdateSceneContent folds the chunk into the running scene summary.
	UpdateSceneContent(ctx context.Context, current string, chunk types.Chunk) (string, error)
}
