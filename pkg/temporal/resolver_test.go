package temporal

import (
	"testing"
	"time"

	"github.com/soundprediction/chronicle/pkg/types"
)

func versionAt(versionID, cacheID string, at time.Time) *types.EntityVersion {
	return &types.EntityVersion{
		VersionID:    versionID,
		EntityID:     "ent_1",
		Name:         "x",
		PhysicalTime: at,
		CacheID:      cacheID,
	}
}

func TestGroupByScene(t *testing.T) {
	now := time.Now()
	records := []*types.EntityVersion{
		versionAt("v1", "cache_a", now),
		versionAt("v2", "cache_b", now),
		versionAt("v3", "cache_a", now),
		versionAt("v4", "", now),
	}

	groups := GroupByScene(records)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if len(groups["cache_a"]) != 2 {
		t.Errorf("cache_a has %d records, want 2", len(groups["cache_a"]))
	}
	if len(groups["cache_b"]) != 1 {
		t.Errorf("cache_b has %d records, want 1", len(groups["cache_b"]))
	}
	if len(groups[""]) != 1 {
		t.Errorf("unscoped group has %d records, want 1", len(groups[""]))
	}
}

func TestOrderStable(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []*types.EntityVersion{
		versionAt("late", "", base.Add(time.Hour)),
		versionAt("tie1", "", base),
		versionAt("tie2", "", base),
		versionAt("early", "", base.Add(-time.Hour)),
	}

	ordered := Order(records)
	want := []string{"early", "tie1", "tie2", "late"}
	for i, id := range want {
		if ordered[i].VersionID != id {
			t.Errorf("position %d = %s, want %s", i, ordered[i].VersionID, id)
		}
	}
	// Input stays untouched.
	if records[0].VersionID != "late" {
		t.Error("Order must not mutate its input")
	}
}

func TestOrderIgnoresEventTime(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	early := versionAt("physical_early", "", base)
	early.EventTime = &types.EventTime{AnchorType: types.AnchorSequence, SequenceIndex: 99}
	late := versionAt("physical_late", "", base.Add(time.Hour))
	late.EventTime = &types.EventTime{AnchorType: types.AnchorSequence, SequenceIndex: 1}

	ordered := Order([]*types.EntityVersion{late, early})
	if ordered[0].VersionID != "physical_early" {
		t.Error("ordering must follow physical time, not narrative anchors")
	}
}

func TestAnnotate(t *testing.T) {
	now := time.Now()
	v1 := versionAt("v1", "", now)
	v1.EventTime = &types.EventTime{AnchorType: types.AnchorAbsolute, AnchorValue: "1967-05-04"}
	v2 := versionAt("v2", "", now)

	annotated := Annotate([]*types.EntityVersion{v1, v2})
	if len(annotated) != 2 {
		t.Fatalf("got %d annotated records, want 2", len(annotated))
	}
	if annotated[0].EventTime == nil || annotated[0].EventTime.AnchorValue != "1967-05-04" {
		t.Error("v1's anchor should ride along")
	}
	if annotated[1].EventTime != nil {
		t.Error("v2 has no anchor")
	}
}
