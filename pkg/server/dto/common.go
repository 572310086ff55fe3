package dto

import (
	"errors"
	"strings"
	"time"

	"github.com/soundprediction/chronicle/pkg/types"
)

// Validation errors
var (
	ErrEmptyQuery       = errors.New("query cannot be empty")
	ErrEmptyEntityID    = errors.New("entity_id cannot be empty")
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrContentTooLong   = errors.New("content exceeds maximum length (1MB)")
	ErrNoDecisions      = errors.New("commit requires at least one decision")
	ErrTooManyDecisions = errors.New("commit exceeds maximum batch size (1024)")
)

// MaxContentLength caps text payload fields.
const MaxContentLength = 1 << 20

// MaxBatchDecisions caps decisions per commit request.
const MaxBatchDecisions = 1024

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SearchRequest drives POST /api/v1/search.
type SearchRequest struct {
	Query     string    `json:"query"`
	Vector    []float32 `json:"vector,omitempty"`
	Scope     string    `json:"scope"`
	Method    string    `json:"method"`
	Threshold float64   `json:"threshold"`
	Limit     int       `json:"limit"`
	Relations bool      `json:"relations"` // search relations instead of entities
}

// Validate performs structural validation; semantic validation (unknown
// scope or method) is the search layer's job.
func (r *SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" && len(r.Vector) == 0 {
		return ErrEmptyQuery
	}
	return nil
}

// PathsRequest drives POST /api/v1/paths.
type PathsRequest struct {
	Entity1ID string `json:"entity1_id"`
	Entity2ID string `json:"entity2_id"`
	MaxHops   int    `json:"max_hops"`
}

// Validate checks required fields.
func (r *PathsRequest) Validate() error {
	if strings.TrimSpace(r.Entity1ID) == "" || strings.TrimSpace(r.Entity2ID) == "" {
		return ErrEmptyEntityID
	}
	return nil
}

// SaveCacheRequest drives POST /api/v1/cache.
type SaveCacheRequest struct {
	Content      string     `json:"content"`
	ActivityType string     `json:"activity_type"`
	PhysicalTime *time.Time `json:"physical_time,omitempty"`
}

// Validate checks content bounds.
func (r *SaveCacheRequest) Validate() error {
	if r.Content == "" {
		return ErrEmptyContent
	}
	if len(r.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// SaveCacheResponse reports the snapshot id and whether a new version was
// written.
type SaveCacheResponse struct {
	ID      string `json:"id"`
	Changed bool   `json:"changed"`
}

// CommitRequest drives POST /api/v1/commit. It mirrors the commit engine's
// input one-to-one.
type CommitRequest struct {
	EntityFacts       []types.EntityFact         `json:"entity_facts"`
	RelationFacts     []types.RelationFact       `json:"relation_facts"`
	EntityDecisions   []types.UpdateDecision     `json:"entity_decisions"`
	RelationDecisions []types.UpdateDecision     `json:"relation_decisions"`
	EventTimes        map[string]types.EventTime `json:"event_times,omitempty"`
	CacheID           string                     `json:"cache_id,omitempty"`
	WorldTime         *time.Time                 `json:"world_time,omitempty"`
	Source            types.SourceMeta           `json:"source"`
}

// Validate bounds the batch; decision semantics are validated downstream.
func (r *CommitRequest) Validate() error {
	n := len(r.EntityDecisions) + len(r.RelationDecisions)
	if n == 0 {
		return ErrNoDecisions
	}
	if n > MaxBatchDecisions {
		return ErrTooManyDecisions
	}
	return nil
}

// CommitResponse reports the batch outcome.
type CommitResponse struct {
	Committed bool                     `json:"committed"`
	Commit    *types.Commit            `json:"commit,omitempty"`
	Deferred  []types.DeferredConflict `json:"deferred,omitempty"`
}
