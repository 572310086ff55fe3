// Package temporal orders records on the physical-time axis and groups them
// by originating scene. Narrative event-time anchors are exposed alongside
// physical time, never substituted for it: the two measure different axes.
package temporal

import (
	"sort"

	"github.com/soundprediction/chronicle/pkg/types"
)

// GroupByScene maps each cache id to the records that share it. Records
// without a scene reference group under the empty key. Sharing a scene is a
// same-event candidate signal for the caller, never an automatic merge.
func GroupByScene[T types.TimedRecord](records []T) map[string][]T {
	groups := make(map[string][]T)
	for _, r := range records {
		groups[r.GetCacheID()] = append(groups[r.GetCacheID()], r)
	}
	return groups
}

// Order returns the records sorted ascending by physical time. The sort is
// stable, so records with equal timestamps keep their input order. The input
// slice is not modified.
func Order[T types.TimedRecord](records []T) []T {
	out := make([]T, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GetPhysicalTime().Before(out[j].GetPhysicalTime())
	})
	return out
}

// Annotated pairs a record with its narrative anchor for presentation.
type Annotated[T types.TimedRecord] struct {
	Record    T
	EventTime *types.EventTime
}

// Annotate attaches each record's event-time anchor, preserving order. The
// anchor rides along for display and reasoning; ordering stays physical.
func Annotate[T types.TimedRecord](records []T) []Annotated[T] {
	out := make([]Annotated[T], 0, len(records))
	for _, r := range records {
		out = append(out, Annotated[T]{Record: r, EventTime: r.GetEventTime()})
	}
	return out
}
