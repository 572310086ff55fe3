package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/soundprediction/chronicle/pkg/types"
)

const (
	// MaxHops bounds path search; deeper traversal is clamped, not rejected.
	MaxHops = 5
	// maxNeighbors caps fan-out per node so a hub entity cannot blow up the
	// frontier.
	maxNeighbors = 50
	// defaultMaxPaths caps how many paths one query returns.
	defaultMaxPaths = 20
)

// Path is one simple path between two logical entities: len(Entities) is
// always len(Relations)+1, with Entities[0] the source and the last element
// the target.
type Path struct {
	Entities  []string
	Relations []*types.RelationVersion
}

// Hops returns the path length in edges.
func (p *Path) Hops() int { return len(p.Relations) }

// recency is the aggregate physical time of constituent relations, used as
// a deterministic tiebreak between equal-length paths.
func (p *Path) recency() int64 {
	var sum int64
	for _, r := range p.Relations {
		sum += r.PhysicalTime.UnixNano()
	}
	return sum
}

// Traverser answers direct-relation and multi-hop path queries over the
// logical-entity projection of the relation graph.
type Traverser struct {
	reader GraphReader
	logger *slog.Logger
	// MaxPaths caps results per query. Zero means defaultMaxPaths.
	MaxPaths int
}

// NewTraverser creates a Traverser. A nil logger falls back to slog.Default().
func NewTraverser(reader GraphReader, logger *slog.Logger) *Traverser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Traverser{reader: reader, logger: logger}
}

// DirectRelations returns the latest version of every relation touching
// entityID. When otherEntityID is non-empty, only relations connecting the
// two are returned. Results order newest first.
func (t *Traverser) DirectRelations(ctx context.Context, entityID, otherEntityID string) ([]*types.RelationVersion, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity id is required", types.ErrInvalidQuery)
	}
	versions, err := t.reader.EntityRelations(ctx, entityID)
	if err != nil {
		return nil, err
	}

	// The adjacency index covers historical versions too; collapse to each
	// logical relation's current head.
	seen := make(map[string]bool)
	var heads []*types.RelationVersion
	for _, v := range versions {
		if seen[v.RelationID] {
			continue
		}
		seen[v.RelationID] = true
		head, err := t.reader.LatestRelationVersion(ctx, v.RelationID)
		if err != nil {
			return nil, err
		}
		if !head.Touches(entityID) {
			continue
		}
		if otherEntityID != "" && !head.Touches(otherEntityID) {
			continue
		}
		heads = append(heads, head)
	}
	sort.SliceStable(heads, func(i, j int) bool {
		return heads[i].PhysicalTime.After(heads[j].PhysicalTime)
	})
	return heads, nil
}

// Paths returns simple paths from entity1 to entity2 within maxHops edges,
// ordered by ascending hop count then descending aggregate recency. No path
// within the bound yields an empty result, not an error.
func (t *Traverser) Paths(ctx context.Context, entity1ID, entity2ID string, maxHops int) ([]*Path, error) {
	if entity1ID == "" || entity2ID == "" {
		return nil, fmt.Errorf("%w: both entity ids are required", types.ErrInvalidQuery)
	}
	if maxHops < 1 {
		return nil, fmt.Errorf("%w: max_hops must be at least 1", types.ErrInvalidQuery)
	}
	if maxHops > MaxHops {
		maxHops = MaxHops
	}
	maxPaths := t.MaxPaths
	if maxPaths <= 0 {
		maxPaths = defaultMaxPaths
	}

	adjacency, err := t.buildAdjacency(ctx)
	if err != nil {
		return nil, err
	}

	var paths []*Path
	queue := []*Path{{Entities: []string{entity1ID}}}
	for len(queue) > 0 && len(paths) < maxPaths {
		current := queue[0]
		queue = queue[1:]

		if current.Hops() >= maxHops {
			continue
		}
		tail := current.Entities[len(current.Entities)-1]

		neighbors := adjacency[tail]
		if len(neighbors) > maxNeighbors {
			neighbors = neighbors[:maxNeighbors]
		}
		for _, rel := range neighbors {
			next := rel.OtherEntity(tail)
			if next == "" || current.visits(next) {
				continue
			}
			extended := current.extend(next, rel)
			if next == entity2ID {
				paths = append(paths, extended)
				if len(paths) >= maxPaths {
					break
				}
				continue
			}
			queue = append(queue, extended)
		}
	}

	sort.SliceStable(paths, func(i, j int) bool {
		if paths[i].Hops() != paths[j].Hops() {
			return paths[i].Hops() < paths[j].Hops()
		}
		return paths[i].recency() > paths[j].recency()
	})
	t.logger.Debug("path search", "from", entity1ID, "to", entity2ID, "max_hops", maxHops, "paths", len(paths))
	return paths, nil
}

// buildAdjacency loads every relation chain head and indexes it under both
// logical endpoints, newest relations first so the neighbor cap keeps the
// most recent context.
func (t *Traverser) buildAdjacency(ctx context.Context) (map[string][]*types.RelationVersion, error) {
	heads, err := t.reader.LatestRelations(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(heads, func(i, j int) bool {
		return heads[i].PhysicalTime.After(heads[j].PhysicalTime)
	})
	adjacency := make(map[string][]*types.RelationVersion)
	for _, rel := range heads {
		adjacency[rel.Endpoint1EntityID] = append(adjacency[rel.Endpoint1EntityID], rel)
		if rel.Endpoint2EntityID != rel.Endpoint1EntityID {
			adjacency[rel.Endpoint2EntityID] = append(adjacency[rel.Endpoint2EntityID], rel)
		}
	}
	return adjacency, nil
}

func (p *Path) visits(entityID string) bool {
	for _, e := range p.Entities {
		if e == entityID {
			return true
		}
	}
	return false
}

func (p *Path) extend(entityID string, rel *types.RelationVersion) *Path {
	entities := make([]string, len(p.Entities), len(p.Entities)+1)
	copy(entities, p.Entities)
	relations := make([]*types.RelationVersion, len(p.Relations), len(p.Relations)+1)
	copy(relations, p.Relations)
	return &Path{
		Entities:  append(entities, entityID),
		Relations: append(relations, rel),
	}
}
