// Package checkpoint persists ingestion progress so a long document can
// resume after a crash or a reasoner outage. One checkpoint tracks one
// document: its chunk windows, how many have been committed, and the
// commits already written. The graph itself stays consistent without
// checkpoints; this only avoids re-extracting finished chunks.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soundprediction/chronicle/pkg/types"
)

// ErrInvalidDocumentID is returned when a document ID contains path
// traversal sequences or characters unsafe for file names.
var ErrInvalidDocumentID = errors.New("invalid document ID: contains path traversal or invalid characters")

// Step marks how far a document has progressed through ingestion.
type Step string

const (
	StepInitial   Step = "initial"
	StepChunked   Step = "chunked"
	StepCommitted Step = "committed"
	StepCompleted Step = "completed"
)

// IngestCheckpoint is the resumable state of one document.
type IngestCheckpoint struct {
	DocumentID   string `json:"document_id"`
	ActivityType string `json:"activity_type,omitempty"`
	Step         Step   `json:"step"`

	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	AttemptCount  int       `json:"attempt_count"`
	LastError     string    `json:"last_error,omitempty"`

	// Chunks is the full window sequence; NextChunk indexes the first one
	// not yet committed.
	Chunks    []types.Chunk `json:"chunks,omitempty"`
	NextChunk int           `json:"next_chunk"`

	// CacheID is the scene snapshot in effect after the last committed chunk.
	CacheID   string   `json:"cache_id,omitempty"`
	CommitIDs []string `json:"commit_ids,omitempty"`
}

// New creates a checkpoint for a document at the initial step.
func New(documentID, activityType string) *IngestCheckpoint {
	now := time.Now()
	return &IngestCheckpoint{
		DocumentID:    documentID,
		ActivityType:  activityType,
		Step:          StepInitial,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// CanRetry reports whether the checkpoint is still worth resuming.
func (c *IngestCheckpoint) CanRetry(maxAttempts int, maxAge time.Duration) bool {
	if c.AttemptCount >= maxAttempts {
		return false
	}
	return time.Since(c.CreatedAt) <= maxAge
}

// Progress returns a human-readable progress description.
func (c *IngestCheckpoint) Progress() string {
	if len(c.Chunks) == 0 {
		return string(c.Step)
	}
	return fmt.Sprintf("%s (%d/%d chunks)", c.Step, c.NextChunk, len(c.Chunks))
}

// Manager stores checkpoints as JSON files in a directory.
type Manager struct {
	dir string
}

// NewManager creates a checkpoint manager. An empty dir falls back to
// os.TempDir()/chronicle-checkpoints.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "chronicle-checkpoints")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the checkpoint directory path.
func (m *Manager) Dir() string {
	return m.dir
}

// validateDocumentID rejects IDs that could escape the checkpoint directory.
func validateDocumentID(documentID string) error {
	if documentID == "" {
		return ErrInvalidDocumentID
	}
	if strings.Contains(documentID, "..") {
		return ErrInvalidDocumentID
	}
	if strings.ContainsAny(documentID, `/\`) {
		return ErrInvalidDocumentID
	}
	if strings.ContainsRune(documentID, '\x00') {
		return ErrInvalidDocumentID
	}
	return nil
}

// Path returns the checkpoint file path for a document.
func (m *Manager) Path(documentID string) (string, error) {
	if err := validateDocumentID(documentID); err != nil {
		return "", err
	}
	full := filepath.Join(m.dir, fmt.Sprintf("checkpoint_%s.json", documentID))
	if !strings.HasPrefix(filepath.Clean(full), filepath.Clean(m.dir)+string(filepath.Separator)) {
		return "", ErrInvalidDocumentID
	}
	return full, nil
}

// Save persists the checkpoint. The write is atomic: a temp file is renamed
// over the previous state so a crash never leaves a torn checkpoint.
func (m *Manager) Save(ctx context.Context, c *IngestCheckpoint) error {
	c.LastUpdatedAt = time.Now()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	path, err := m.Path(c.DocumentID)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint. A missing checkpoint returns (nil, nil).
func (m *Manager) Load(ctx context.Context, documentID string) (*IngestCheckpoint, error) {
	path, err := m.Path(documentID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var c IngestCheckpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &c, nil
}

// Delete removes a checkpoint. Deleting a missing checkpoint is a no-op.
func (m *Manager) Delete(ctx context.Context, documentID string) error {
	path, err := m.Path(documentID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint file: %w", err)
	}
	return nil
}

// Exists checks whether a checkpoint is on disk for the document.
func (m *Manager) Exists(ctx context.Context, documentID string) (bool, error) {
	path, err := m.Path(documentID)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check checkpoint existence: %w", err)
	}
	return true, nil
}

// List returns every readable checkpoint in the directory.
func (m *Manager) List(ctx context.Context) ([]*IngestCheckpoint, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}
	var out []*IngestCheckpoint
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			continue
		}
		var c IngestCheckpoint
		if err := json.Unmarshal(data, &c); err != nil {
			continue
		}
		out = append(out, &c)
	}
	return out, nil
}

// MarkChunkCommitted advances past one chunk and records its commit.
func (m *Manager) MarkChunkCommitted(ctx context.Context, documentID, commitID, cacheID string) error {
	c, err := m.Load(ctx, documentID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("checkpoint not found for document %s", documentID)
	}
	c.NextChunk++
	if commitID != "" {
		c.CommitIDs = append(c.CommitIDs, commitID)
	}
	if cacheID != "" {
		c.CacheID = cacheID
	}
	if c.NextChunk >= len(c.Chunks) {
		c.Step = StepCompleted
	} else {
		c.Step = StepCommitted
	}
	return m.Save(ctx, c)
}

// RecordError notes a failed attempt without losing progress.
func (m *Manager) RecordError(ctx context.Context, documentID string, cause error) error {
	c, err := m.Load(ctx, documentID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("checkpoint not found for document %s", documentID)
	}
	c.AttemptCount++
	c.LastError = cause.Error()
	return m.Save(ctx, c)
}

// CleanOld removes checkpoints whose last update is older than maxAge and
// returns how many were removed.
func (m *Manager) CleanOld(ctx context.Context, maxAge time.Duration) (int, error) {
	checkpoints, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, c := range checkpoints {
		if c.LastUpdatedAt.Before(cutoff) {
			if err := m.Delete(ctx, c.DocumentID); err != nil {
				continue
			}
			removed++
		}
	}
	return removed, nil
}
