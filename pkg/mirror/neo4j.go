// Package mirror projects the latest state of the graph into Neo4j so
// external visualization and Cypher tooling can browse it. The mirror is a
// read-side convenience: Badger stays the source of truth, and the
// projection is rebuilt wholesale on each sync.
package mirror

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/soundprediction/chronicle/pkg/types"
)

// GraphReader is the slice of the store the mirror reads from.
type GraphReader interface {
	LatestEntities(ctx context.Context) ([]*types.EntityVersion, error)
	LatestRelations(ctx context.Context) ([]*types.RelationVersion, error)
}

// Neo4jMirror pushes entity heads as nodes and relation heads as edges.
type Neo4jMirror struct {
	client   neo4j.DriverWithContext
	database string
	reader   GraphReader
	logger   *slog.Logger
}

// NewNeo4jMirror connects to the target instance.
func NewNeo4jMirror(uri, username, password, database string, reader GraphReader, logger *slog.Logger) (*Neo4jMirror, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Neo4jMirror{
		client:   driver,
		database: database,
		reader:   reader,
		logger:   logger,
	}, nil
}

// Close releases the driver.
func (m *Neo4jMirror) Close(ctx context.Context) error {
	return m.client.Close(ctx)
}

// Sync replaces the mirrored projection with the current chain heads.
// Relations are undirected in the store; the mirror writes one edge per
// relation and leaves direction meaningless by convention.
func (m *Neo4jMirror) Sync(ctx context.Context) error {
	entities, err := m.reader.LatestEntities(ctx)
	if err != nil {
		return err
	}
	relations, err := m.reader.LatestRelations(ctx)
	if err != nil {
		return err
	}

	session := m.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: m.database})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (n:Entity) DETACH DELETE n`, nil); err != nil {
			return nil, err
		}

		for _, e := range entities {
			query := `
				CREATE (n:Entity {
					entity_id: $entity_id,
					version_id: $version_id,
					name: $name,
					content: $content,
					physical_time: $physical_time,
					cache_id: $cache_id
				})
			`
			_, err := tx.Run(ctx, query, map[string]any{
				"entity_id":     e.EntityID,
				"version_id":    e.VersionID,
				"name":          e.Name,
				"content":       e.Content,
				"physical_time": e.PhysicalTime,
				"cache_id":      e.CacheID,
			})
			if err != nil {
				return nil, err
			}
		}

		for _, r := range relations {
			query := `
				MATCH (a:Entity {entity_id: $entity1_id})
				MATCH (b:Entity {entity_id: $entity2_id})
				CREATE (a)-[:RELATES_TO {
					relation_id: $relation_id,
					version_id: $version_id,
					content: $content,
					physical_time: $physical_time
				}]->(b)
			`
			_, err := tx.Run(ctx, query, map[string]any{
				"entity1_id":    r.Endpoint1EntityID,
				"entity2_id":    r.Endpoint2EntityID,
				"relation_id":   r.RelationID,
				"version_id":    r.VersionID,
				"content":       r.Content,
				"physical_time": r.PhysicalTime,
			})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("syncing mirror: %w", err)
	}

	m.logger.Info("mirror synced", "entities", len(entities), "relations", len(relations))
	return nil
}
