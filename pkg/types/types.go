package types

import (
	"fmt"
	"time"
)

// AnchorType classifies how an EventTime locates a record on the narrative
// axis, as opposed to the physical (ingestion) axis.
type AnchorType string

const (
	// AnchorAbsolute is a concrete in-story date or timestamp ("1967-05-04").
	AnchorAbsolute AnchorType = "absolute"
	// AnchorRelative is an offset from another narrative point ("three days later").
	AnchorRelative AnchorType = "relative"
	// AnchorSequence is a bare ordering position when no clock is available.
	AnchorSequence AnchorType = "sequence"
)

// EventTime approximates when something happened inside the narrative.
// It is carried alongside PhysicalTime and never substituted for it:
// the two measure different axes.
type EventTime struct {
	AnchorType    AnchorType `json:"anchor_type" mapstructure:"anchor_type"`
	AnchorValue   string     `json:"anchor_value" mapstructure:"anchor_value"`
	SequenceIndex int        `json:"sequence_index" mapstructure:"sequence_index"`
}

// Validate checks that the anchor type is one of the known values.
func (e *EventTime) Validate() error {
	switch e.AnchorType {
	case AnchorAbsolute, AnchorRelative, AnchorSequence:
		return nil
	default:
		return fmt.Errorf("unknown event time anchor type: %q", e.AnchorType)
	}
}

// EntityVersion is one immutable snapshot of a logical entity. All versions
// sharing an EntityID form a totally-ordered chain by PhysicalTime, ties
// broken by insertion order.
type EntityVersion struct {
	VersionID            string     `json:"version_id" mapstructure:"version_id"`
	EntityID             string     `json:"entity_id" mapstructure:"entity_id"`
	Name                 string     `json:"name" mapstructure:"name"`
	Content              string     `json:"content" mapstructure:"content"`
	PhysicalTime         time.Time  `json:"physical_time" mapstructure:"physical_time"`
	CacheID              string     `json:"cache_id,omitempty" mapstructure:"cache_id"`
	Embedding            []float32  `json:"embedding,omitempty" mapstructure:"embedding"`
	PredecessorVersionID string     `json:"predecessor_version_id,omitempty" mapstructure:"predecessor_version_id"`
	EventTime            *EventTime `json:"event_time,omitempty" mapstructure:"event_time"`
}

// Validate checks required fields on a version about to be written.
func (v *EntityVersion) Validate() error {
	if v.VersionID == "" {
		return fmt.Errorf("entity version missing version_id")
	}
	if v.EntityID == "" {
		return fmt.Errorf("entity version %s missing entity_id", v.VersionID)
	}
	if v.Name == "" {
		return fmt.Errorf("entity version %s missing name", v.VersionID)
	}
	if v.PhysicalTime.IsZero() {
		return fmt.Errorf("entity version %s missing physical_time", v.VersionID)
	}
	if v.EventTime != nil {
		if err := v.EventTime.Validate(); err != nil {
			return fmt.Errorf("entity version %s: %w", v.VersionID, err)
		}
	}
	return nil
}

// GetPhysicalTime implements TimedRecord.
func (v *EntityVersion) GetPhysicalTime() time.Time { return v.PhysicalTime }

// GetCacheID implements TimedRecord.
func (v *EntityVersion) GetCacheID() string { return v.CacheID }

// GetEventTime implements TimedRecord.
func (v *EntityVersion) GetEventTime() *EventTime { return v.EventTime }

// RelationVersion is one immutable snapshot of a logical relation. Endpoints
// are pinned to specific entity versions, not logical ids, so the recorded
// context never changes retroactively when an endpoint later gains versions.
// Relations are undirected; the store normalizes endpoint order on write.
type RelationVersion struct {
	VersionID            string     `json:"version_id" mapstructure:"version_id"`
	RelationID           string     `json:"relation_id" mapstructure:"relation_id"`
	Endpoint1VersionID   string     `json:"endpoint1_version_id" mapstructure:"endpoint1_version_id"`
	Endpoint2VersionID   string     `json:"endpoint2_version_id" mapstructure:"endpoint2_version_id"`
	Endpoint1EntityID    string     `json:"endpoint1_entity_id" mapstructure:"endpoint1_entity_id"`
	Endpoint2EntityID    string     `json:"endpoint2_entity_id" mapstructure:"endpoint2_entity_id"`
	Content              string     `json:"content" mapstructure:"content"`
	PhysicalTime         time.Time  `json:"physical_time" mapstructure:"physical_time"`
	CacheID              string     `json:"cache_id,omitempty" mapstructure:"cache_id"`
	Embedding            []float32  `json:"embedding,omitempty" mapstructure:"embedding"`
	PredecessorVersionID string     `json:"predecessor_version_id,omitempty" mapstructure:"predecessor_version_id"`
	EventTime            *EventTime `json:"event_time,omitempty" mapstructure:"event_time"`
}

// Validate checks required fields on a relation version about to be written.
func (v *RelationVersion) Validate() error {
	if v.VersionID == "" {
		return fmt.Errorf("relation version missing version_id")
	}
	if v.RelationID == "" {
		return fmt.Errorf("relation version %s missing relation_id", v.VersionID)
	}
	if v.Endpoint1VersionID == "" || v.Endpoint2VersionID == "" {
		return fmt.Errorf("relation version %s missing endpoint version ids", v.VersionID)
	}
	if v.PhysicalTime.IsZero() {
		return fmt.Errorf("relation version %s missing physical_time", v.VersionID)
	}
	if v.EventTime != nil {
		if err := v.EventTime.Validate(); err != nil {
			return fmt.Errorf("relation version %s: %w", v.VersionID, err)
		}
	}
	return nil
}

// GetPhysicalTime implements TimedRecord.
func (v *RelationVersion) GetPhysicalTime() time.Time { return v.PhysicalTime }

// GetCacheID implements TimedRecord.
func (v *RelationVersion) GetCacheID() string { return v.CacheID }

// GetEventTime implements TimedRecord.
func (v *RelationVersion) GetEventTime() *EventTime { return v.EventTime }

// OtherEntity returns the logical id of the endpoint opposite entityID,
// or empty if entityID is not an endpoint of this relation.
func (v *RelationVersion) OtherEntity(entityID string) string {
	switch entityID {
	case v.Endpoint1EntityID:
		return v.Endpoint2EntityID
	case v.Endpoint2EntityID:
		return v.Endpoint1EntityID
	default:
		return ""
	}
}

// Touches reports whether entityID is one of the relation's logical endpoints.
func (v *RelationVersion) Touches(entityID string) bool {
	return v.Endpoint1EntityID == entityID || v.Endpoint2EntityID == entityID
}

// MemoryCache is one immutable scene/document snapshot. Snapshots with the
// same ActivityType form an append-only stream; a new version is appended
// only when the content hash differs from the stream's latest snapshot.
type MemoryCache struct {
	ID           string    `json:"id" mapstructure:"id"`
	Content      string    `json:"content" mapstructure:"content"`
	PhysicalTime time.Time `json:"physical_time" mapstructure:"physical_time"`
	ActivityType string    `json:"activity_type,omitempty" mapstructure:"activity_type"`
	ContentHash  string    `json:"content_hash" mapstructure:"content_hash"`
}

// GetPhysicalTime implements TimedRecord.
func (m *MemoryCache) GetPhysicalTime() time.Time { return m.PhysicalTime }

// GetCacheID implements TimedRecord.
func (m *MemoryCache) GetCacheID() string { return m.ID }

// GetEventTime implements TimedRecord.
func (m *MemoryCache) GetEventTime() *EventTime { return nil }

// TextRange locates a span inside the source text a commit was derived from.
type TextRange struct {
	Start int `json:"start" mapstructure:"start"`
	End   int `json:"end" mapstructure:"end"`
}

// SourceMeta describes the provenance of a commit batch.
type SourceMeta struct {
	SourceType  string     `json:"source_type,omitempty" mapstructure:"source_type"`
	TextRange   *TextRange `json:"text_range,omitempty" mapstructure:"text_range"`
	TextSnippet string     `json:"text_snippet,omitempty" mapstructure:"text_snippet"`
	Message     string     `json:"message,omitempty" mapstructure:"message"`
}

// Commit is the immutable record of one atomic decision batch. All version
// ids it references were written together in a single storage transaction.
type Commit struct {
	ID                       string     `json:"id" mapstructure:"id"`
	WorldTime                time.Time  `json:"world_time" mapstructure:"world_time"`
	AddedEntityVersions      []string   `json:"added_entity_versions" mapstructure:"added_entity_versions"`
	ModifiedEntityVersions   []string   `json:"modified_entity_versions" mapstructure:"modified_entity_versions"`
	AddedRelationVersions    []string   `json:"added_relation_versions" mapstructure:"added_relation_versions"`
	ModifiedRelationVersions []string   `json:"modified_relation_versions" mapstructure:"modified_relation_versions"`
	CacheID                  string     `json:"cache_id,omitempty" mapstructure:"cache_id"`
	SourceType               string     `json:"source_type,omitempty" mapstructure:"source_type"`
	SourceTextRange          *TextRange `json:"source_text_range,omitempty" mapstructure:"source_text_range"`
	SourceTextSnippet        string     `json:"source_text_snippet,omitempty" mapstructure:"source_text_snippet"`
	Message                  string     `json:"message,omitempty" mapstructure:"message"`
}

// VersionCount returns the total number of version ids the commit references.
func (c *Commit) VersionCount() int {
	return len(c.AddedEntityVersions) + len(c.ModifiedEntityVersions) +
		len(c.AddedRelationVersions) + len(c.ModifiedRelationVersions)
}

// Chunk is one window of source text produced by the segmentation utility.
// The store consumes chunks as opaque ingestion units; it never re-segments.
type Chunk struct {
	Content       string    `json:"content" mapstructure:"content"`
	StartPos      int       `json:"start_pos" mapstructure:"start_pos"`
	EndPos        int       `json:"end_pos" mapstructure:"end_pos"`
	OverlapBefore int       `json:"overlap_before" mapstructure:"overlap_before"`
	OverlapAfter  int       `json:"overlap_after" mapstructure:"overlap_after"`
	SequenceIndex int       `json:"sequence_index" mapstructure:"sequence_index"`
	WorldTime     time.Time `json:"world_time" mapstructure:"world_time"`
}

// TimedRecord is any record carrying the physical/narrative time pair and a
// scene reference. The temporal resolver operates on this interface.
type TimedRecord interface {
	GetPhysicalTime() time.Time
	GetCacheID() string
	GetEventTime() *EventTime
}

// Compile-time interface checks.
var (
	_ TimedRecord = (*EntityVersion)(nil)
	_ TimedRecord = (*RelationVersion)(nil)
	_ TimedRecord = (*MemoryCache)(nil)
)
