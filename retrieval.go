package chronicle

import (
	"context"
	"time"

	"github.com/soundprediction/chronicle/pkg/search"
	"github.com/soundprediction/chronicle/pkg/temporal"
	"github.com/soundprediction/chronicle/pkg/types"
)

// The query-facing tool surface. Each method is a thin wrapper over the
// search, traversal, temporal, and store layers, shaped for a calling
// reasoning agent; question understanding happens outside.

// SearchEntity returns entities matching the query, ranked by similarity.
func (c *Client) SearchEntity(ctx context.Context, q search.Query) ([]search.EntityMatch, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.searcher.SearchEntities(ctx, q)
}

// SearchRelations returns relations whose content matches the query.
func (c *Client) SearchRelations(ctx context.Context, q search.Query) ([]search.RelationMatch, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.searcher.SearchRelations(ctx, q)
}

// GetEntityRelations returns the latest relations touching the entity,
// optionally restricted to those also touching otherEntityID.
func (c *Client) GetEntityRelations(ctx context.Context, entityID, otherEntityID string) ([]*types.RelationVersion, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.traverser.DirectRelations(ctx, entityID, otherEntityID)
}

// GetRelationPaths returns simple paths between two logical entities within
// maxHops edges.
func (c *Client) GetRelationPaths(ctx context.Context, entity1ID, entity2ID string, maxHops int) ([]*search.Path, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.traverser.Paths(ctx, entity1ID, entity2ID, maxHops)
}

// GetEntityVersions returns the entity's full history, ascending by
// physical time.
func (c *Client) GetEntityVersions(ctx context.Context, entityID string) ([]*types.EntityVersion, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.store.EntityHistory(ctx, entityID)
}

// GetRelationVersions returns the relation's full history.
func (c *Client) GetRelationVersions(ctx context.Context, relationID string) ([]*types.RelationVersion, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.store.RelationHistory(ctx, relationID)
}

// EntityTimeline returns the entity's history with narrative anchors
// attached. Ordering stays on the physical axis.
func (c *Client) EntityTimeline(ctx context.Context, entityID string) ([]temporal.Annotated[*types.EntityVersion], error) {
	history, err := c.GetEntityVersions(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return temporal.Annotate(temporal.Order(history)), nil
}

// GroupVersionsByScene groups an entity's history by originating scene
// snapshot, a same-event candidate signal for the caller.
func (c *Client) GroupVersionsByScene(ctx context.Context, entityID string) (map[string][]*types.EntityVersion, error) {
	history, err := c.GetEntityVersions(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return temporal.GroupByScene(history), nil
}

// ListEntities returns the current head version of every logical entity.
func (c *Client) ListEntities(ctx context.Context) ([]*types.EntityVersion, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.store.LatestEntities(ctx)
}

// ListRelations returns the current head version of every logical relation.
func (c *Client) ListRelations(ctx context.Context) ([]*types.RelationVersion, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.store.LatestRelations(ctx)
}

// SaveMemoryCache stores a scene snapshot, deduplicating against the
// stream's latest content hash.
func (c *Client) SaveMemoryCache(ctx context.Context, content string, physicalTime time.Time, activityType string) (string, bool, error) {
	if err := c.checkOpen(); err != nil {
		return "", false, err
	}
	if physicalTime.IsZero() {
		physicalTime = time.Now()
	}
	return c.store.SaveCache(ctx, content, physicalTime, activityType)
}

// GetMemoryCache returns the snapshot with the given id.
func (c *Client) GetMemoryCache(ctx context.Context, id string) (*types.MemoryCache, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.store.LoadCache(ctx, id)
}

// LatestMemoryCache returns the most recent snapshot in the activity stream.
func (c *Client) LatestMemoryCache(ctx context.Context, activityType string) (*types.MemoryCache, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.store.LatestCache(ctx, activityType)
}

// Commits returns the commit log ascending by world time.
func (c *Client) Commits(ctx context.Context) ([]*types.Commit, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.store.Commits(ctx)
}
