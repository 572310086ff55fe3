package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/chronicle/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntityVersion(entityID, name string, at time.Time) *types.EntityVersion {
	return &types.EntityVersion{
		VersionID:    uuid.NewString(),
		EntityID:     entityID,
		Name:         name,
		Content:      name + " content",
		PhysicalTime: at,
	}
}

func commitOf(versions ...*types.EntityVersion) CommitWrite {
	c := &types.Commit{ID: uuid.NewString(), WorldTime: time.Now()}
	for _, v := range versions {
		if v.PredecessorVersionID == "" {
			c.AddedEntityVersions = append(c.AddedEntityVersions, v.VersionID)
		} else {
			c.ModifiedEntityVersions = append(c.ModifiedEntityVersions, v.VersionID)
		}
	}
	return CommitWrite{Commit: c, Entities: versions}
}

func TestSaveCacheDedup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id1, changed, err := s.SaveCache(ctx, "scene one", now, "reading")
	if err != nil {
		t.Fatalf("SaveCache failed: %v", err)
	}
	if !changed {
		t.Error("first save should report changed=true")
	}

	id2, changed, err := s.SaveCache(ctx, "scene one", now.Add(time.Minute), "reading")
	if err != nil {
		t.Fatalf("SaveCache failed: %v", err)
	}
	if changed {
		t.Error("identical content should report changed=false")
	}
	if id2 != id1 {
		t.Errorf("identical content returned new id %s, want %s", id2, id1)
	}

	id3, changed, err := s.SaveCache(ctx, "scene two", now.Add(2*time.Minute), "reading")
	if err != nil {
		t.Fatalf("SaveCache failed: %v", err)
	}
	if !changed {
		t.Error("differing content should report changed=true")
	}
	if id3 == id1 {
		t.Error("differing content should mint a new id")
	}

	caches, err := s.ListCaches(ctx, "reading")
	if err != nil {
		t.Fatalf("ListCaches failed: %v", err)
	}
	if len(caches) != 2 {
		t.Errorf("stream has %d snapshots, want 2", len(caches))
	}
}

func TestSaveCacheSeparateStreams(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, _, err := s.SaveCache(ctx, "same content", now, "reading"); err != nil {
		t.Fatalf("SaveCache failed: %v", err)
	}
	_, changed, err := s.SaveCache(ctx, "same content", now, "chatting")
	if err != nil {
		t.Fatalf("SaveCache failed: %v", err)
	}
	if !changed {
		t.Error("dedup must not cross activity streams")
	}
}

func TestLoadCacheNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadCache(context.Background(), "cache_missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("LoadCache error = %v, want ErrNotFound", err)
	}
}

func TestLatestCache(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, _, err := s.SaveCache(ctx, "first", now, ""); err != nil {
		t.Fatalf("SaveCache failed: %v", err)
	}
	id2, _, err := s.SaveCache(ctx, "second", now.Add(time.Minute), "")
	if err != nil {
		t.Fatalf("SaveCache failed: %v", err)
	}

	latest, err := s.LatestCache(ctx, "")
	if err != nil {
		t.Fatalf("LatestCache failed: %v", err)
	}
	if latest.ID != id2 {
		t.Errorf("LatestCache = %s, want %s", latest.ID, id2)
	}
	if latest.Content != "second" {
		t.Errorf("LatestCache content = %q, want %q", latest.Content, "second")
	}
}

func TestEntityHistoryOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	v1 := testEntityVersion("ent_1", "史强", t1)
	if err := s.ApplyCommit(ctx, commitOf(v1)); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	v2 := testEntityVersion("ent_1", "史强", t2)
	v2.Content = "史强, a police detective"
	v2.PredecessorVersionID = v1.VersionID
	if err := s.ApplyCommit(ctx, commitOf(v2)); err != nil {
		t.Fatalf("second commit failed: %v", err)
	}

	history, err := s.EntityHistory(ctx, "ent_1")
	if err != nil {
		t.Fatalf("EntityHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].VersionID != v1.VersionID || history[1].VersionID != v2.VersionID {
		t.Errorf("history order = [%s, %s], want [%s, %s]",
			history[0].VersionID, history[1].VersionID, v1.VersionID, v2.VersionID)
	}
	if history[1].PredecessorVersionID != history[0].VersionID {
		t.Error("predecessor link should point at the earlier version")
	}

	latest, err := s.LatestEntityVersion(ctx, "ent_1")
	if err != nil {
		t.Fatalf("LatestEntityVersion failed: %v", err)
	}
	if latest.VersionID != v2.VersionID {
		t.Errorf("latest = %s, want %s", latest.VersionID, v2.VersionID)
	}

	count, err := s.EntityVersionCount(ctx, "ent_1")
	if err != nil {
		t.Fatalf("EntityVersionCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("version count = %d, want 2", count)
	}
}

func TestEntityHistoryTieBreak(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	v1 := testEntityVersion("ent_tie", "tie", at)
	v2 := testEntityVersion("ent_tie", "tie", at)
	v2.PredecessorVersionID = v1.VersionID

	if err := s.ApplyCommit(ctx, commitOf(v1)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := s.ApplyCommit(ctx, commitOf(v2)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	history, err := s.EntityHistory(ctx, "ent_tie")
	if err != nil {
		t.Fatalf("EntityHistory failed: %v", err)
	}
	if history[0].VersionID != v1.VersionID {
		t.Error("equal physical times must preserve insertion order")
	}
}

func TestEntityHistoryNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.EntityHistory(context.Background(), "ent_missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("EntityHistory error = %v, want ErrNotFound", err)
	}
}

func TestApplyCommitRejectsStalePredecessor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	v1 := testEntityVersion("ent_a", "a", now)
	if err := s.ApplyCommit(ctx, commitOf(v1)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	// Opening a second chain for the same logical id without a predecessor
	// would fork the history.
	fork := testEntityVersion("ent_a", "a", now.Add(time.Hour))
	err := s.ApplyCommit(ctx, commitOf(fork))
	if !errors.Is(err, types.ErrIntegrityViolation) {
		t.Errorf("forking commit error = %v, want ErrIntegrityViolation", err)
	}

	// A predecessor from a different chain is equally invalid.
	other := testEntityVersion("ent_b", "b", now)
	if err := s.ApplyCommit(ctx, commitOf(other)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	cross := testEntityVersion("ent_a", "a", now.Add(time.Hour))
	cross.PredecessorVersionID = other.VersionID
	err = s.ApplyCommit(ctx, commitOf(cross))
	if !errors.Is(err, types.ErrIntegrityViolation) {
		t.Errorf("cross-chain commit error = %v, want ErrIntegrityViolation", err)
	}
}

func TestApplyCommitRelationForwardReference(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	e1 := testEntityVersion("ent_1", "one", now)
	e2 := testEntityVersion("ent_2", "two", now)
	if err := s.ApplyCommit(ctx, commitOf(e1, e2)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	rel := &types.RelationVersion{
		VersionID:          uuid.NewString(),
		RelationID:         "rel_1",
		Endpoint1VersionID: e1.VersionID,
		Endpoint2VersionID: e2.VersionID,
		Content:            "one knows two",
		PhysicalTime:       now.Add(-time.Hour), // predates both endpoints
	}
	err := s.ApplyCommit(ctx, CommitWrite{
		Commit: &types.Commit{
			ID:                    uuid.NewString(),
			WorldTime:             time.Now(),
			AddedRelationVersions: []string{rel.VersionID},
		},
		Relations: []*types.RelationVersion{rel},
	})
	if !errors.Is(err, types.ErrIntegrityViolation) {
		t.Errorf("forward-reference commit error = %v, want ErrIntegrityViolation", err)
	}
}

func TestApplyCommitRelationDanglingEndpoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rel := &types.RelationVersion{
		VersionID:          uuid.NewString(),
		RelationID:         "rel_1",
		Endpoint1VersionID: "no-such-version",
		Endpoint2VersionID: "also-missing",
		Content:            "dangling",
		PhysicalTime:       time.Now(),
	}
	err := s.ApplyCommit(ctx, CommitWrite{
		Commit: &types.Commit{
			ID:                    uuid.NewString(),
			WorldTime:             time.Now(),
			AddedRelationVersions: []string{rel.VersionID},
		},
		Relations: []*types.RelationVersion{rel},
	})
	if !errors.Is(err, types.ErrIntegrityViolation) {
		t.Errorf("dangling endpoint commit error = %v, want ErrIntegrityViolation", err)
	}
}

func TestApplyCommitAtomicity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// One valid entity plus one relation with a dangling endpoint: the
	// whole batch must be rejected, leaving no trace of the entity.
	e := testEntityVersion("ent_atomic", "atomic", now)
	rel := &types.RelationVersion{
		VersionID:          uuid.NewString(),
		RelationID:         "rel_1",
		Endpoint1VersionID: e.VersionID,
		Endpoint2VersionID: "missing",
		Content:            "half valid",
		PhysicalTime:       now,
	}
	err := s.ApplyCommit(ctx, CommitWrite{
		Commit: &types.Commit{
			ID:                    uuid.NewString(),
			WorldTime:             now,
			AddedEntityVersions:   []string{e.VersionID},
			AddedRelationVersions: []string{rel.VersionID},
		},
		Entities:  []*types.EntityVersion{e},
		Relations: []*types.RelationVersion{rel},
	})
	if !errors.Is(err, types.ErrIntegrityViolation) {
		t.Fatalf("mixed commit error = %v, want ErrIntegrityViolation", err)
	}

	if _, err := s.EntityHistory(ctx, "ent_atomic"); !errors.Is(err, types.ErrNotFound) {
		t.Error("rejected batch must not leave partial writes behind")
	}
	if _, err := s.GetEntityVersion(ctx, e.VersionID); !errors.Is(err, types.ErrNotFound) {
		t.Error("rejected batch must not persist the entity version")
	}
}

func TestRelationEndpointNormalization(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	e1 := testEntityVersion("ent_b", "bee", now)
	e2 := testEntityVersion("ent_a", "ay", now)
	rel := &types.RelationVersion{
		VersionID:          uuid.NewString(),
		RelationID:         "rel_1",
		Endpoint1VersionID: e1.VersionID, // ent_b listed first on purpose
		Endpoint2VersionID: e2.VersionID,
		Content:            "bee meets ay",
		PhysicalTime:       now,
	}
	err := s.ApplyCommit(ctx, CommitWrite{
		Commit: &types.Commit{
			ID:                    uuid.NewString(),
			WorldTime:             now,
			AddedEntityVersions:   []string{e1.VersionID, e2.VersionID},
			AddedRelationVersions: []string{rel.VersionID},
		},
		Entities:  []*types.EntityVersion{e1, e2},
		Relations: []*types.RelationVersion{rel},
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	stored, err := s.GetRelationVersion(ctx, rel.VersionID)
	if err != nil {
		t.Fatalf("GetRelationVersion failed: %v", err)
	}
	if stored.Endpoint1EntityID != "ent_a" || stored.Endpoint2EntityID != "ent_b" {
		t.Errorf("endpoints = (%s, %s), want canonical (ent_a, ent_b)",
			stored.Endpoint1EntityID, stored.Endpoint2EntityID)
	}

	for _, entityID := range []string{"ent_a", "ent_b"} {
		rels, err := s.EntityRelations(ctx, entityID)
		if err != nil {
			t.Fatalf("EntityRelations(%s) failed: %v", entityID, err)
		}
		if len(rels) != 1 || rels[0].VersionID != rel.VersionID {
			t.Errorf("EntityRelations(%s) = %d versions, want the committed one", entityID, len(rels))
		}
	}
}

func TestLatestEntities(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	v1 := testEntityVersion("ent_1", "one", now)
	v2 := testEntityVersion("ent_2", "two", now)
	if err := s.ApplyCommit(ctx, commitOf(v1, v2)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	v1b := testEntityVersion("ent_1", "one", now.Add(time.Hour))
	v1b.PredecessorVersionID = v1.VersionID
	if err := s.ApplyCommit(ctx, commitOf(v1b)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	heads, err := s.LatestEntities(ctx)
	if err != nil {
		t.Fatalf("LatestEntities failed: %v", err)
	}
	if len(heads) != 2 {
		t.Fatalf("LatestEntities returned %d heads, want 2", len(heads))
	}
	byEntity := map[string]string{}
	for _, h := range heads {
		byEntity[h.EntityID] = h.VersionID
	}
	if byEntity["ent_1"] != v1b.VersionID {
		t.Errorf("ent_1 head = %s, want %s", byEntity["ent_1"], v1b.VersionID)
	}
	if byEntity["ent_2"] != v2.VersionID {
		t.Errorf("ent_2 head = %s, want %s", byEntity["ent_2"], v2.VersionID)
	}
}

func TestCommitLogOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		v := testEntityVersion("ent_log_"+uuid.NewString()[:8], "log", base.Add(time.Duration(i)*time.Minute))
		w := commitOf(v)
		w.Commit.WorldTime = base.Add(time.Duration(i) * time.Minute)
		w.Commit.Message = "batch"
		if err := s.ApplyCommit(ctx, w); err != nil {
			t.Fatalf("commit %d failed: %v", i, err)
		}
	}

	commits, err := s.Commits(ctx)
	if err != nil {
		t.Fatalf("Commits failed: %v", err)
	}
	if len(commits) != 3 {
		t.Fatalf("commit log has %d entries, want 3", len(commits))
	}
	for i := 1; i < len(commits); i++ {
		if commits[i].WorldTime.Before(commits[i-1].WorldTime) {
			t.Error("commit log must ascend by world time")
		}
	}
}

func TestApplyCommitEmptyBatch(t *testing.T) {
	s := openTestStore(t)
	err := s.ApplyCommit(context.Background(), CommitWrite{
		Commit: &types.Commit{ID: uuid.NewString(), WorldTime: time.Now()},
	})
	if !errors.Is(err, types.ErrInvalidDecision) {
		t.Errorf("empty batch error = %v, want ErrInvalidDecision", err)
	}
}

func TestSaveCacheConcurrentWriters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = s.SaveCache(ctx, fmt.Sprintf("scene %d", i), now, "concurrent")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, types.ErrStorage) {
			t.Errorf("writer %d: error %v escapes the storage taxonomy", i, err)
		}
	}
	if succeeded == 0 {
		t.Fatal("every concurrent save failed")
	}

	caches, err := s.ListCaches(ctx, "concurrent")
	if err != nil {
		t.Fatalf("ListCaches failed: %v", err)
	}
	if len(caches) != succeeded {
		t.Errorf("stream holds %d snapshots, want %d (one per successful save)", len(caches), succeeded)
	}
}
