package chronicle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/chronicle/pkg/checkpoint"
	"github.com/soundprediction/chronicle/pkg/chunker"
	"github.com/soundprediction/chronicle/pkg/embedder"
	"github.com/soundprediction/chronicle/pkg/extract"
	"github.com/soundprediction/chronicle/pkg/types"
)

const snippetRunes = 120

// IngestOptions configures one document ingestion run.
type IngestOptions struct {
	// DocumentID keys checkpoint state. Empty mints a fresh id, which makes
	// the run non-resumable.
	DocumentID string
	// ActivityType selects the scene snapshot stream the run reads and writes.
	ActivityType string
	// SourceType stamps commit provenance ("novel", "transcript", ...).
	SourceType string
	// WorldTime stamps every chunk and commit. Zero means now.
	WorldTime time.Time
	// WindowSize and Overlap configure segmentation. Zero uses the chunker
	// defaults.
	WindowSize int
	Overlap    int
	// Checkpoints, when set, persists progress after every chunk so an
	// interrupted run resumes where it stopped instead of re-extracting.
	Checkpoints *checkpoint.Manager
	// Embedder, when set, attaches content vectors to every fact before it
	// is committed, enabling embedding search over the results.
	Embedder embedder.Client
}

// IngestResult reports what one ingestion run wrote, including work carried
// over from a resumed checkpoint.
type IngestResult struct {
	DocumentID string
	// CacheID is the scene snapshot in effect after the last chunk.
	CacheID string
	// Chunks is the total window count for the document.
	Chunks    int
	CommitIDs []string
	Deferred  []types.DeferredConflict
}

// IngestDocument runs the full pipeline over one document: segment the text,
// then for each chunk extract facts, judge them against the current graph,
// infer event times, fold the chunk into the scene snapshot, and commit.
// Commit granularity is one chunk; a failure mid-document leaves every
// earlier chunk durably committed, and with a checkpoint manager the next
// call for the same DocumentID resumes at the failed chunk.
//
// The extractor is invoked outside the commit lock; see extract.Extractor.
func (c *Client) IngestDocument(ctx context.Context, text string, ex extract.Extractor, opts IngestOptions) (*IngestResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, fmt.Errorf("ingest requires an extractor")
	}

	if opts.DocumentID == "" {
		opts.DocumentID = "doc_" + uuid.NewString()
	}
	worldTime := opts.WorldTime
	if worldTime.IsZero() {
		worldTime = time.Now()
	}

	cp, err := c.resumeOrChunk(ctx, text, worldTime, &opts)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{
		DocumentID: opts.DocumentID,
		CacheID:    cp.CacheID,
		Chunks:     len(cp.Chunks),
		CommitIDs:  append([]string(nil), cp.CommitIDs...),
	}
	c.logger.Info("ingesting document",
		"document_id", opts.DocumentID,
		"chunks", len(cp.Chunks),
		"resume_at", cp.NextChunk)

	for cp.NextChunk < len(cp.Chunks) {
		chunk := cp.Chunks[cp.NextChunk]
		commitID, cacheID, deferred, err := c.ingestChunk(ctx, chunk, ex, &opts)
		if err != nil {
			if opts.Checkpoints != nil {
				if cpErr := opts.Checkpoints.RecordError(ctx, opts.DocumentID, err); cpErr != nil {
					c.logger.Warn("failed to record checkpoint error", "document_id", opts.DocumentID, "error", cpErr)
				}
			}
			return nil, fmt.Errorf("ingesting chunk %d of %s: %w", chunk.SequenceIndex, opts.DocumentID, err)
		}

		cp.NextChunk++
		if commitID != "" {
			cp.CommitIDs = append(cp.CommitIDs, commitID)
			result.CommitIDs = append(result.CommitIDs, commitID)
		}
		if cacheID != "" {
			cp.CacheID = cacheID
			result.CacheID = cacheID
		}
		result.Deferred = append(result.Deferred, deferred...)

		if opts.Checkpoints != nil {
			if err := opts.Checkpoints.MarkChunkCommitted(ctx, opts.DocumentID, commitID, cacheID); err != nil {
				return nil, fmt.Errorf("saving checkpoint for %s: %w", opts.DocumentID, err)
			}
		}
	}

	c.logger.Info("document ingested",
		"document_id", opts.DocumentID,
		"commits", len(result.CommitIDs),
		"deferred", len(result.Deferred))
	return result, nil
}

// resumeOrChunk loads the document's checkpoint if one is resumable,
// otherwise segments the text and records the fresh window sequence.
func (c *Client) resumeOrChunk(ctx context.Context, text string, worldTime time.Time, opts *IngestOptions) (*checkpoint.IngestCheckpoint, error) {
	if opts.Checkpoints != nil {
		existing, err := opts.Checkpoints.Load(ctx, opts.DocumentID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Step != checkpoint.StepCompleted && len(existing.Chunks) > 0 {
			c.logger.Info("resuming from checkpoint", "document_id", opts.DocumentID, "progress", existing.Progress())
			return existing, nil
		}
	}

	windowSize := opts.WindowSize
	if windowSize <= 0 {
		windowSize = chunker.DefaultWindowSize
	}
	overlap := opts.Overlap
	if overlap <= 0 {
		overlap = chunker.DefaultOverlap
	}
	if overlap >= windowSize {
		overlap = windowSize / 2
	}
	ck, err := chunker.New(windowSize, overlap)
	if err != nil {
		return nil, err
	}

	cp := checkpoint.New(opts.DocumentID, opts.ActivityType)
	cp.Chunks = ck.Split(text, worldTime)
	cp.Step = checkpoint.StepChunked
	if opts.Checkpoints != nil {
		if err := opts.Checkpoints.Save(ctx, cp); err != nil {
			return nil, err
		}
	}
	return cp, nil
}

// ingestChunk runs extraction, judgment, event-time inference, the scene
// update, and the commit for one chunk. A chunk that yields no facts commits
// nothing and is not an error.
func (c *Client) ingestChunk(ctx context.Context, chunk types.Chunk, ex extract.Extractor, opts *IngestOptions) (commitID, cacheID string, deferred []types.DeferredConflict, err error) {
	gc, err := c.graphContext(ctx, opts.ActivityType)
	if err != nil {
		return "", "", nil, err
	}

	entities, relations, err := ex.ExtractFacts(ctx, chunk, gc)
	if err != nil {
		return "", "", nil, fmt.Errorf("extracting facts: %w", err)
	}
	if len(entities) == 0 && len(relations) == 0 {
		c.logger.Debug("chunk yielded no facts", "sequence_index", chunk.SequenceIndex)
		return "", "", nil, nil
	}

	entityDecisions, relationDecisions, err := ex.JudgeUpdates(ctx, entities, relations, gc)
	if err != nil {
		return "", "", nil, fmt.Errorf("judging updates: %w", err)
	}

	eventTimes, err := ex.InferEventTimes(ctx, chunk, entities, relations)
	if err != nil {
		return "", "", nil, fmt.Errorf("inferring event times: %w", err)
	}

	if opts.Embedder != nil {
		if err := embedFacts(ctx, opts.Embedder, entities, relations); err != nil {
			return "", "", nil, fmt.Errorf("embedding facts: %w", err)
		}
	}

	scene, err := ex.UpdateSceneContent(ctx, gc.SceneContent, chunk)
	if err != nil {
		return "", "", nil, fmt.Errorf("updating scene: %w", err)
	}
	if scene != "" {
		cacheID, _, err = c.SaveMemoryCache(ctx, scene, chunk.WorldTime, opts.ActivityType)
		if err != nil {
			return "", "", nil, err
		}
	}

	res, err := c.Commit(ctx, CommitInput{
		EntityFacts:       entities,
		RelationFacts:     relations,
		EntityDecisions:   entityDecisions,
		RelationDecisions: relationDecisions,
		EventTimes:        eventTimes,
		CacheID:           cacheID,
		WorldTime:         chunk.WorldTime,
		Source: types.SourceMeta{
			SourceType:  opts.SourceType,
			TextRange:   &types.TextRange{Start: chunk.StartPos, End: chunk.EndPos},
			TextSnippet: snippet(chunk.Content),
			Message:     fmt.Sprintf("chunk %d of %s", chunk.SequenceIndex, opts.DocumentID),
		},
	})
	if err != nil {
		return "", cacheID, nil, err
	}
	if res.Committed {
		commitID = res.Commit.ID
	}
	return commitID, cacheID, res.Deferred, nil
}

// graphContext assembles what the reasoner sees of the current graph: the
// activity stream's scene snapshot and the entity chain heads.
func (c *Client) graphContext(ctx context.Context, activityType string) (extract.GraphContext, error) {
	var gc extract.GraphContext

	scene, err := c.LatestMemoryCache(ctx, activityType)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return gc, err
	}
	if scene != nil {
		gc.SceneContent = scene.Content
	}

	candidates, err := c.ListEntities(ctx)
	if err != nil {
		return gc, err
	}
	gc.CandidateEntities = candidates
	return gc, nil
}

// embedFacts attaches one content vector per fact, in a single batched call.
func embedFacts(ctx context.Context, emb embedder.Client, entities []types.EntityFact, relations []types.RelationFact) error {
	texts := make([]string, 0, len(entities)+len(relations))
	for i := range entities {
		texts = append(texts, entities[i].Content)
	}
	for i := range relations {
		texts = append(texts, relations[i].Content)
	}

	vectors, err := emb.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedder returned %d vectors for %d facts", len(vectors), len(texts))
	}
	for i := range entities {
		entities[i].Embedding = vectors[i]
	}
	for i := range relations {
		relations[i].Embedding = vectors[len(entities)+i]
	}
	return nil
}

func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetRunes {
		return content
	}
	return string(runes[:snippetRunes]) + "..."
}
