package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/soundprediction/chronicle/pkg/types"
)

// Scope selects which fields a search matches against.
type Scope string

const (
	ScopeNameOnly       Scope = "name_only"
	ScopeContentOnly    Scope = "content_only"
	ScopeNameAndContent Scope = "name_and_content"
)

// Method selects the similarity function.
type Method string

const (
	// MethodLexical is case-insensitive substring matching.
	MethodLexical Method = "lexical"
	// MethodJaccard is rune-set overlap against the threshold.
	MethodJaccard Method = "jaccard"
	// MethodEmbedding is cosine similarity over stored vectors.
	MethodEmbedding Method = "embedding"
)

// Query is one search request. Text drives lexical and jaccard methods;
// Vector drives the embedding method. Threshold filters in [0,1]; Limit
// caps results, zero meaning unlimited.
type Query struct {
	Text      string
	Vector    []float32
	Scope     Scope
	Method    Method
	Threshold float64
	Limit     int
}

func (q *Query) validate(relationScoped bool) error {
	switch q.Method {
	case MethodLexical, MethodJaccard:
		if q.Text == "" {
			return fmt.Errorf("%w: %s search requires query text", types.ErrInvalidQuery, q.Method)
		}
	case MethodEmbedding:
		if len(q.Vector) == 0 {
			return fmt.Errorf("%w: embedding search requires a query vector", types.ErrInvalidQuery)
		}
	default:
		return fmt.Errorf("%w: unknown search method %q", types.ErrInvalidQuery, q.Method)
	}
	if relationScoped && q.Scope == "" {
		// Relations have only content; an unset scope is fine.
		return nil
	}
	switch q.Scope {
	case ScopeNameOnly, ScopeContentOnly, ScopeNameAndContent:
		return nil
	default:
		return fmt.Errorf("%w: unknown search scope %q", types.ErrInvalidQuery, q.Scope)
	}
}

// EntityMatch is one ranked entity result.
type EntityMatch struct {
	Version *types.EntityVersion
	Score   float64
}

// RelationMatch is one ranked relation result.
type RelationMatch struct {
	Version *types.RelationVersion
	Score   float64
}

// GraphReader is the slice of the store the search layer depends on.
type GraphReader interface {
	LatestEntities(ctx context.Context) ([]*types.EntityVersion, error)
	LatestRelations(ctx context.Context) ([]*types.RelationVersion, error)
	EntityRelations(ctx context.Context, entityID string) ([]*types.RelationVersion, error)
	LatestRelationVersion(ctx context.Context, relationID string) (*types.RelationVersion, error)
}

// Searcher runs similarity queries over chain heads. Historical versions are
// reachable through history lookups, not search.
type Searcher struct {
	reader GraphReader
	logger *slog.Logger
}

// NewSearcher creates a Searcher. A nil logger falls back to slog.Default().
func NewSearcher(reader GraphReader, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{reader: reader, logger: logger}
}

// SearchEntities returns entities matching the query, ranked by descending
// similarity with ties broken by more recent physical time.
func (s *Searcher) SearchEntities(ctx context.Context, q Query) ([]EntityMatch, error) {
	if err := q.validate(false); err != nil {
		return nil, err
	}
	heads, err := s.reader.LatestEntities(ctx)
	if err != nil {
		return nil, err
	}

	var matches []EntityMatch
	for _, v := range heads {
		score := s.scoreEntity(q, v)
		if score <= 0 || score < q.Threshold {
			continue
		}
		matches = append(matches, EntityMatch{Version: v, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Version.PhysicalTime.After(matches[j].Version.PhysicalTime)
	})
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	s.logger.Debug("entity search", "method", q.Method, "scope", q.Scope, "matches", len(matches))
	return matches, nil
}

// SearchRelations is the same contract scoped to relation content.
func (s *Searcher) SearchRelations(ctx context.Context, q Query) ([]RelationMatch, error) {
	if err := q.validate(true); err != nil {
		return nil, err
	}
	heads, err := s.reader.LatestRelations(ctx)
	if err != nil {
		return nil, err
	}

	var matches []RelationMatch
	for _, v := range heads {
		var score float64
		if q.Method == MethodEmbedding {
			score = cosineSimilarity(q.Vector, v.Embedding)
		} else {
			score = textScore(q, v.Content)
		}
		if score <= 0 || score < q.Threshold {
			continue
		}
		matches = append(matches, RelationMatch{Version: v, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Version.PhysicalTime.After(matches[j].Version.PhysicalTime)
	})
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	s.logger.Debug("relation search", "method", q.Method, "matches", len(matches))
	return matches, nil
}

func (s *Searcher) scoreEntity(q Query, v *types.EntityVersion) float64 {
	if q.Method == MethodEmbedding {
		return cosineSimilarity(q.Vector, v.Embedding)
	}
	switch q.Scope {
	case ScopeNameOnly:
		return textScore(q, v.Name)
	case ScopeContentOnly:
		return textScore(q, v.Content)
	default:
		// name_and_content takes the better of the two fields.
		return max(textScore(q, v.Name), textScore(q, v.Content))
	}
}

func textScore(q Query, field string) float64 {
	switch q.Method {
	case MethodJaccard:
		return jaccardSimilarity(q.Text, field)
	default:
		return lexicalSimilarity(q.Text, field)
	}
}
