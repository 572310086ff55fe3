package chronicle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/chronicle/pkg/checkpoint"
	"github.com/soundprediction/chronicle/pkg/extract"
	"github.com/soundprediction/chronicle/pkg/types"
)

// chunkScriptedExtractor emits one NEW entity per chunk, named after the
// chunk's sequence index, and tracks how often extraction runs.
type chunkScriptedExtractor struct {
	extractCalls int
	failOnChunk  int          // sequence index to fail at; -1 disables
	noFactsOn    map[int]bool // chunks that yield nothing
}

func newScriptedExtractor() *chunkScriptedExtractor {
	return &chunkScriptedExtractor{failOnChunk: -1}
}

func (e *chunkScriptedExtractor) ExtractFacts(ctx context.Context, chunk types.Chunk, gc extract.GraphContext) ([]types.EntityFact, []types.RelationFact, error) {
	e.extractCalls++
	if chunk.SequenceIndex == e.failOnChunk {
		return nil, nil, errors.New("invalid api key")
	}
	if e.noFactsOn[chunk.SequenceIndex] {
		return nil, nil, nil
	}
	fact := types.EntityFact{
		FactID:  fmt.Sprintf("f%d", chunk.SequenceIndex),
		Name:    fmt.Sprintf("entity-%d", chunk.SequenceIndex),
		Content: chunk.Content,
	}
	return []types.EntityFact{fact}, nil, nil
}

func (e *chunkScriptedExtractor) JudgeUpdates(ctx context.Context, entities []types.EntityFact, relations []types.RelationFact, gc extract.GraphContext) ([]types.UpdateDecision, []types.UpdateDecision, error) {
	var entityDecisions, relationDecisions []types.UpdateDecision
	for _, f := range entities {
		entityDecisions = append(entityDecisions, types.UpdateDecision{FactID: f.FactID, Kind: types.DecisionNew})
	}
	for _, f := range relations {
		relationDecisions = append(relationDecisions, types.UpdateDecision{FactID: f.FactID, Kind: types.DecisionNew})
	}
	return entityDecisions, relationDecisions, nil
}

func (e *chunkScriptedExtractor) InferEventTimes(ctx context.Context, chunk types.Chunk, entities []types.EntityFact, relations []types.RelationFact) (map[string]types.EventTime, error) {
	out := make(map[string]types.EventTime, len(entities))
	for _, f := range entities {
		out[f.FactID] = types.EventTime{AnchorType: types.AnchorSequence, SequenceIndex: chunk.SequenceIndex}
	}
	return out, nil
}

func (e *chunkScriptedExtractor) UpdateSceneContent(ctx context.Context, current string, chunk types.Chunk) (string, error) {
	return fmt.Sprintf("scene after chunk %d", chunk.SequenceIndex), nil
}

var _ extract.Extractor = (*chunkScriptedExtractor)(nil)

// staticEmbedder returns a fixed-dimension vector per text.
type staticEmbedder struct{}

func (staticEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (s staticEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// ingestText windows into three chunks at WindowSize 10, Overlap 2.
const ingestText = "abcdefghijklmnopqrstuvwxyz"

func TestIngestDocumentCommitsPerChunk(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	ex := newScriptedExtractor()

	res, err := c.IngestDocument(ctx, ingestText, ex, IngestOptions{
		DocumentID:   "doc-basic",
		ActivityType: "reading",
		SourceType:   "novel",
		WorldTime:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		WindowSize:   10,
		Overlap:      2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Chunks)
	assert.Len(t, res.CommitIDs, 3, "one commit per chunk")
	assert.Equal(t, 3, ex.extractCalls)
	assert.NotEmpty(t, res.CacheID)

	entities, err := c.ListEntities(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 3)

	commits, err := c.Commits(ctx)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	for _, commit := range commits {
		require.NotNil(t, commit.SourceTextRange)
		assert.Equal(t, "novel", commit.SourceType)
		assert.NotEmpty(t, commit.CacheID, "each chunk commit carries its scene snapshot")
	}

	// The scene stream holds one snapshot per chunk.
	scene, err := c.LatestMemoryCache(ctx, "reading")
	require.NoError(t, err)
	assert.Equal(t, "scene after chunk 2", scene.Content)
}

func TestIngestDocumentResumesFromCheckpoint(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	mgr, err := checkpoint.NewManager(t.TempDir())
	require.NoError(t, err)

	opts := IngestOptions{
		DocumentID:   "doc-resume",
		ActivityType: "reading",
		WindowSize:   10,
		Overlap:      2,
		Checkpoints:  mgr,
	}

	failing := newScriptedExtractor()
	failing.failOnChunk = 1
	_, err = c.IngestDocument(ctx, ingestText, failing, opts)
	require.Error(t, err)
	assert.Equal(t, 2, failing.extractCalls, "chunk 0 succeeds, chunk 1 fails")

	cp, err := mgr.Load(ctx, "doc-resume")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 1, cp.NextChunk, "progress survives the failure")
	assert.Equal(t, 1, cp.AttemptCount)
	assert.NotEmpty(t, cp.LastError)
	require.Len(t, cp.CommitIDs, 1)

	healthy := newScriptedExtractor()
	res, err := c.IngestDocument(ctx, ingestText, healthy, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, healthy.extractCalls, "finished chunks are not re-extracted")
	assert.Len(t, res.CommitIDs, 3, "result carries commits from the first run")

	entities, err := c.ListEntities(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 3, "no duplicate writes for the resumed chunk")

	cp, err = mgr.Load(ctx, "doc-resume")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, checkpoint.StepCompleted, cp.Step)
}

func TestIngestDocumentAttachesEmbeddings(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.IngestDocument(ctx, ingestText, newScriptedExtractor(), IngestOptions{
		DocumentID: "doc-embedded",
		WindowSize: 10,
		Overlap:    2,
		Embedder:   staticEmbedder{},
	})
	require.NoError(t, err)

	entities, err := c.ListEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 3)
	for _, v := range entities {
		assert.NotEmpty(t, v.Embedding, "entity %s should carry a vector", v.Name)
	}
}

func TestIngestDocumentSkipsFactlessChunks(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	ex := newScriptedExtractor()
	ex.noFactsOn = map[int]bool{1: true}

	res, err := c.IngestDocument(ctx, ingestText, ex, IngestOptions{
		DocumentID: "doc-sparse",
		WindowSize: 10,
		Overlap:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Chunks)
	assert.Len(t, res.CommitIDs, 2, "a factless chunk commits nothing")

	commits, err := c.Commits(ctx)
	require.NoError(t, err)
	assert.Len(t, commits, 2)
}

func TestIngestDocumentRequiresExtractor(t *testing.T) {
	c := newTestClient(t)
	_, err := c.IngestDocument(context.Background(), "text", nil, IngestOptions{})
	require.Error(t, err)
}
