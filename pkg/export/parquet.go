// Package export dumps the version and commit logs to parquet files for
// offline analysis and visualization tooling.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/soundprediction/chronicle/pkg/types"
)

// GraphReader is the slice of the store the exporter reads from.
type GraphReader interface {
	LatestEntities(ctx context.Context) ([]*types.EntityVersion, error)
	EntityHistory(ctx context.Context, entityID string) ([]*types.EntityVersion, error)
	LatestRelations(ctx context.Context) ([]*types.RelationVersion, error)
	RelationHistory(ctx context.Context, relationID string) ([]*types.RelationVersion, error)
	Commits(ctx context.Context) ([]*types.Commit, error)
	ListCaches(ctx context.Context, activityType string) ([]*types.MemoryCache, error)
}

// ParquetExporter writes one parquet file per record kind under a base
// directory.
type ParquetExporter struct {
	baseDir string
	reader  GraphReader
}

// NewParquetExporter creates the exporter and its output directories.
func NewParquetExporter(baseDir string, reader GraphReader) (*ParquetExporter, error) {
	dirs := []string{"entity_versions", "relation_versions", "commits", "caches"}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(baseDir, d), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return &ParquetExporter{baseDir: baseDir, reader: reader}, nil
}

// ParquetEntityVersion is the parquet schema for one entity version row.
type ParquetEntityVersion struct {
	VersionID            string    `parquet:"version_id"`
	EntityID             string    `parquet:"entity_id"`
	Name                 string    `parquet:"name"`
	Content              string    `parquet:"content"`
	PhysicalTime         time.Time `parquet:"physical_time"`
	CacheID              string    `parquet:"cache_id"`
	Embedding            []float32 `parquet:"embedding"`
	PredecessorVersionID string    `parquet:"predecessor_version_id"`
	EventTime            string    `parquet:"event_time"` // JSON string
}

// ParquetRelationVersion is the parquet schema for one relation version row.
type ParquetRelationVersion struct {
	VersionID            string    `parquet:"version_id"`
	RelationID           string    `parquet:"relation_id"`
	Endpoint1VersionID   string    `parquet:"endpoint1_version_id"`
	Endpoint2VersionID   string    `parquet:"endpoint2_version_id"`
	Endpoint1EntityID    string    `parquet:"endpoint1_entity_id"`
	Endpoint2EntityID    string    `parquet:"endpoint2_entity_id"`
	Content              string    `parquet:"content"`
	PhysicalTime         time.Time `parquet:"physical_time"`
	CacheID              string    `parquet:"cache_id"`
	Embedding            []float32 `parquet:"embedding"`
	PredecessorVersionID string    `parquet:"predecessor_version_id"`
	EventTime            string    `parquet:"event_time"` // JSON string
}

// ParquetCommit is the parquet schema for one commit row.
type ParquetCommit struct {
	ID                       string    `parquet:"id"`
	WorldTime                time.Time `parquet:"world_time"`
	AddedEntityVersions      string    `parquet:"added_entity_versions"`    // JSON string
	ModifiedEntityVersions   string    `parquet:"modified_entity_versions"` // JSON string
	AddedRelationVersions    string    `parquet:"added_relation_versions"`  // JSON string
	ModifiedRelationVersions string    `parquet:"modified_relation_versions"`
	CacheID                  string    `parquet:"cache_id"`
	SourceType               string    `parquet:"source_type"`
	SourceTextSnippet        string    `parquet:"source_text_snippet"`
	Message                  string    `parquet:"message"`
}

// ParquetCache is the parquet schema for one scene snapshot row.
type ParquetCache struct {
	ID           string    `parquet:"id"`
	Content      string    `parquet:"content"`
	PhysicalTime time.Time `parquet:"physical_time"`
	ActivityType string    `parquet:"activity_type"`
	ContentHash  string    `parquet:"content_hash"`
}

// ExportAll writes every record kind and returns the number of rows written.
func (e *ParquetExporter) ExportAll(ctx context.Context) (int, error) {
	total := 0
	n, err := e.ExportEntityVersions(ctx)
	if err != nil {
		return total, err
	}
	total += n
	n, err = e.ExportRelationVersions(ctx)
	if err != nil {
		return total, err
	}
	total += n
	n, err = e.ExportCommits(ctx)
	if err != nil {
		return total, err
	}
	total += n
	n, err = e.ExportCaches(ctx)
	if err != nil {
		return total, err
	}
	return total + n, nil
}

// ExportEntityVersions writes the complete entity version log.
func (e *ParquetExporter) ExportEntityVersions(ctx context.Context) (int, error) {
	heads, err := e.reader.LatestEntities(ctx)
	if err != nil {
		return 0, err
	}

	var rows []ParquetEntityVersion
	for _, head := range heads {
		history, err := e.reader.EntityHistory(ctx, head.EntityID)
		if err != nil {
			return 0, err
		}
		for _, v := range history {
			rows = append(rows, ParquetEntityVersion{
				VersionID:            v.VersionID,
				EntityID:             v.EntityID,
				Name:                 v.Name,
				Content:              v.Content,
				PhysicalTime:         v.PhysicalTime,
				CacheID:              v.CacheID,
				Embedding:            v.Embedding,
				PredecessorVersionID: v.PredecessorVersionID,
				EventTime:            marshalString(v.EventTime),
			})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	path := filepath.Join(e.baseDir, "entity_versions", exportFilename("entity_versions"))
	if err := parquet.WriteFile(path, rows); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return len(rows), nil
}

// ExportRelationVersions writes the complete relation version log.
func (e *ParquetExporter) ExportRelationVersions(ctx context.Context) (int, error) {
	heads, err := e.reader.LatestRelations(ctx)
	if err != nil {
		return 0, err
	}

	var rows []ParquetRelationVersion
	for _, head := range heads {
		history, err := e.reader.RelationHistory(ctx, head.RelationID)
		if err != nil {
			return 0, err
		}
		for _, v := range history {
			rows = append(rows, ParquetRelationVersion{
				VersionID:            v.VersionID,
				RelationID:           v.RelationID,
				Endpoint1VersionID:   v.Endpoint1VersionID,
				Endpoint2VersionID:   v.Endpoint2VersionID,
				Endpoint1EntityID:    v.Endpoint1EntityID,
				Endpoint2EntityID:    v.Endpoint2EntityID,
				Content:              v.Content,
				PhysicalTime:         v.PhysicalTime,
				CacheID:              v.CacheID,
				Embedding:            v.Embedding,
				PredecessorVersionID: v.PredecessorVersionID,
				EventTime:            marshalString(v.EventTime),
			})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	path := filepath.Join(e.baseDir, "relation_versions", exportFilename("relation_versions"))
	if err := parquet.WriteFile(path, rows); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return len(rows), nil
}

// ExportCommits writes the commit log.
func (e *ParquetExporter) ExportCommits(ctx context.Context) (int, error) {
	commits, err := e.reader.Commits(ctx)
	if err != nil {
		return 0, err
	}
	if len(commits) == 0 {
		return 0, nil
	}

	rows := make([]ParquetCommit, 0, len(commits))
	for _, c := range commits {
		rows = append(rows, ParquetCommit{
			ID:                       c.ID,
			WorldTime:                c.WorldTime,
			AddedEntityVersions:      marshalString(c.AddedEntityVersions),
			ModifiedEntityVersions:   marshalString(c.ModifiedEntityVersions),
			AddedRelationVersions:    marshalString(c.AddedRelationVersions),
			ModifiedRelationVersions: marshalString(c.ModifiedRelationVersions),
			CacheID:                  c.CacheID,
			SourceType:               c.SourceType,
			SourceTextSnippet:        c.SourceTextSnippet,
			Message:                  c.Message,
		})
	}

	path := filepath.Join(e.baseDir, "commits", exportFilename("commits"))
	if err := parquet.WriteFile(path, rows); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return len(rows), nil
}

// ExportCaches writes the default-stream scene snapshots.
func (e *ParquetExporter) ExportCaches(ctx context.Context) (int, error) {
	caches, err := e.reader.ListCaches(ctx, "")
	if err != nil {
		return 0, err
	}
	if len(caches) == 0 {
		return 0, nil
	}

	rows := make([]ParquetCache, 0, len(caches))
	for _, m := range caches {
		rows = append(rows, ParquetCache{
			ID:           m.ID,
			Content:      m.Content,
			PhysicalTime: m.PhysicalTime,
			ActivityType: m.ActivityType,
			ContentHash:  m.ContentHash,
		})
	}

	path := filepath.Join(e.baseDir, "caches", exportFilename("caches"))
	if err := parquet.WriteFile(path, rows); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return len(rows), nil
}

func exportFilename(kind string) string {
	return fmt.Sprintf("%s_%d.parquet", kind, time.Now().UnixNano())
}

func marshalString(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
