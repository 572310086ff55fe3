package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/soundprediction/chronicle/pkg/types"
)

type fakeReader struct {
	entities  []*types.EntityVersion
	relations []*types.RelationVersion
}

func (f *fakeReader) LatestEntities(ctx context.Context) ([]*types.EntityVersion, error) {
	return f.entities, nil
}

func (f *fakeReader) LatestRelations(ctx context.Context) ([]*types.RelationVersion, error) {
	return f.relations, nil
}

func (f *fakeReader) EntityRelations(ctx context.Context, entityID string) ([]*types.RelationVersion, error) {
	var out []*types.RelationVersion
	for _, r := range f.relations {
		if r.Touches(entityID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReader) LatestRelationVersion(ctx context.Context, relationID string) (*types.RelationVersion, error) {
	for _, r := range f.relations {
		if r.RelationID == relationID {
			return r, nil
		}
	}
	return nil, types.ErrNotFound
}

func entityAt(entityID, name, content string, at time.Time) *types.EntityVersion {
	return &types.EntityVersion{
		VersionID:    entityID + "-v1",
		EntityID:     entityID,
		Name:         name,
		Content:      content,
		PhysicalTime: at,
	}
}

func relationBetween(relationID, e1, e2, content string, at time.Time) *types.RelationVersion {
	return &types.RelationVersion{
		VersionID:          relationID + "-v1",
		RelationID:         relationID,
		Endpoint1VersionID: e1 + "-v1",
		Endpoint2VersionID: e2 + "-v1",
		Endpoint1EntityID:  e1,
		Endpoint2EntityID:  e2,
		Content:            content,
		PhysicalTime:       at,
	}
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abc", "abc", 1.0},
		{"abc", "ABC", 1.0},
		{"abc", "xyz", 0.0},
		{"abc", "abd", 0.5},
		{"", "", 0.0},
		{"史强", "史强警官", 0.5},
	}
	for _, tt := range tests {
		got := jaccardSimilarity(tt.a, tt.b)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("jaccardSimilarity(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"dimension mismatch", []float32{1, 0}, []float32{1}, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0.0},
		{"empty", nil, nil, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("cosineSimilarity = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestSearchEntitiesLexical(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{entities: []*types.EntityVersion{
		entityAt("ent_1", "Ye Wenjie", "an astrophysicist", now),
		entityAt("ent_2", "Wang Miao", "a nanomaterials researcher", now),
		entityAt("ent_3", "Shi Qiang", "wenjie's interrogator", now.Add(time.Hour)),
	}}
	s := NewSearcher(reader, nil)

	matches, err := s.SearchEntities(context.Background(), Query{
		Text:   "wenjie",
		Scope:  ScopeNameOnly,
		Method: MethodLexical,
	})
	if err != nil {
		t.Fatalf("SearchEntities failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Version.EntityID != "ent_1" {
		t.Errorf("matched %s, want ent_1", matches[0].Version.EntityID)
	}

	// name_and_content also finds the mention inside ent_3's content.
	matches, err = s.SearchEntities(context.Background(), Query{
		Text:   "wenjie",
		Scope:  ScopeNameAndContent,
		Method: MethodLexical,
	})
	if err != nil {
		t.Fatalf("SearchEntities failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
}

func TestSearchEntitiesRankingTieBreak(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{entities: []*types.EntityVersion{
		entityAt("ent_old", "alpha", "", now.Add(-time.Hour)),
		entityAt("ent_new", "alpha", "", now),
	}}
	s := NewSearcher(reader, nil)

	matches, err := s.SearchEntities(context.Background(), Query{
		Text:   "alpha",
		Scope:  ScopeNameOnly,
		Method: MethodLexical,
	})
	if err != nil {
		t.Fatalf("SearchEntities failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Version.EntityID != "ent_new" {
		t.Error("equal scores must rank the more recent version first")
	}
}

func TestSearchEntitiesEmbedding(t *testing.T) {
	now := time.Now()
	e1 := entityAt("ent_1", "close", "", now)
	e1.Embedding = []float32{1, 0, 0}
	e2 := entityAt("ent_2", "far", "", now)
	e2.Embedding = []float32{0, 1, 0}
	e3 := entityAt("ent_3", "no vector", "", now)
	reader := &fakeReader{entities: []*types.EntityVersion{e1, e2, e3}}
	s := NewSearcher(reader, nil)

	matches, err := s.SearchEntities(context.Background(), Query{
		Vector:    []float32{1, 0, 0},
		Scope:     ScopeNameAndContent,
		Method:    MethodEmbedding,
		Threshold: 0.5,
	})
	if err != nil {
		t.Fatalf("SearchEntities failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Version.EntityID != "ent_1" {
		t.Errorf("embedding search matched %d results, want only ent_1", len(matches))
	}
}

func TestSearchEntitiesJaccardThreshold(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{entities: []*types.EntityVersion{
		entityAt("ent_1", "abcd", "", now),
		entityAt("ent_2", "wxyz", "", now),
	}}
	s := NewSearcher(reader, nil)

	matches, err := s.SearchEntities(context.Background(), Query{
		Text:      "abce",
		Scope:     ScopeNameOnly,
		Method:    MethodJaccard,
		Threshold: 0.5,
	})
	if err != nil {
		t.Fatalf("SearchEntities failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Version.EntityID != "ent_1" {
		t.Errorf("jaccard search matched %d results, want only ent_1", len(matches))
	}
}

func TestSearchInvalidQueries(t *testing.T) {
	s := NewSearcher(&fakeReader{}, nil)
	ctx := context.Background()

	cases := []Query{
		{Text: "x", Scope: "everything", Method: MethodLexical},
		{Text: "x", Scope: ScopeNameOnly, Method: "semantic"},
		{Scope: ScopeNameOnly, Method: MethodLexical},
		{Text: "x", Scope: ScopeNameOnly, Method: MethodEmbedding},
	}
	for i, q := range cases {
		if _, err := s.SearchEntities(ctx, q); !errors.Is(err, types.ErrInvalidQuery) {
			t.Errorf("case %d: error = %v, want ErrInvalidQuery", i, err)
		}
	}
}

func TestSearchRelations(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{relations: []*types.RelationVersion{
		relationBetween("rel_1", "ent_1", "ent_2", "wenjie contacted trisolaris", now),
		relationBetween("rel_2", "ent_2", "ent_3", "unrelated", now),
	}}
	s := NewSearcher(reader, nil)

	matches, err := s.SearchRelations(context.Background(), Query{
		Text:   "trisolaris",
		Method: MethodLexical,
	})
	if err != nil {
		t.Fatalf("SearchRelations failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Version.RelationID != "rel_1" {
		t.Errorf("got %d matches, want only rel_1", len(matches))
	}

	if _, err := s.SearchRelations(context.Background(), Query{
		Text:   "trisolaris",
		Scope:  "semantic",
		Method: MethodLexical,
	}); !errors.Is(err, types.ErrInvalidQuery) {
		t.Errorf("unknown scope error = %v, want ErrInvalidQuery", err)
	}
}

func TestDirectRelations(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{relations: []*types.RelationVersion{
		relationBetween("rel_ab", "ent_a", "ent_b", "a-b", now),
		relationBetween("rel_bc", "ent_b", "ent_c", "b-c", now.Add(time.Minute)),
	}}
	tr := NewTraverser(reader, nil)
	ctx := context.Background()

	rels, err := tr.DirectRelations(ctx, "ent_b", "")
	if err != nil {
		t.Fatalf("DirectRelations failed: %v", err)
	}
	if len(rels) != 2 {
		t.Fatalf("got %d relations, want 2", len(rels))
	}
	if rels[0].RelationID != "rel_bc" {
		t.Error("results should order newest first")
	}

	rels, err = tr.DirectRelations(ctx, "ent_a", "ent_b")
	if err != nil {
		t.Fatalf("DirectRelations failed: %v", err)
	}
	if len(rels) != 1 || rels[0].RelationID != "rel_ab" {
		t.Errorf("pair lookup got %d relations, want only rel_ab", len(rels))
	}

	if _, err := tr.DirectRelations(ctx, "", ""); !errors.Is(err, types.ErrInvalidQuery) {
		t.Errorf("empty entity id error = %v, want ErrInvalidQuery", err)
	}
}

func TestPathsHopBound(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{relations: []*types.RelationVersion{
		relationBetween("rel_ab", "ent_a", "ent_b", "a-b", now),
		relationBetween("rel_bc", "ent_b", "ent_c", "b-c", now),
	}}
	tr := NewTraverser(reader, nil)
	ctx := context.Background()

	paths, err := tr.Paths(ctx, "ent_a", "ent_c", 1)
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("max_hops=1 returned %d paths, want none", len(paths))
	}

	paths, err = tr.Paths(ctx, "ent_a", "ent_c", 2)
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("max_hops=2 returned %d paths, want 1", len(paths))
	}
	p := paths[0]
	if p.Hops() != 2 {
		t.Errorf("path has %d hops, want 2", p.Hops())
	}
	want := []string{"ent_a", "ent_b", "ent_c"}
	for i, e := range want {
		if p.Entities[i] != e {
			t.Errorf("path entity %d = %s, want %s", i, p.Entities[i], e)
		}
	}
}

func TestPathsOrderingAndSimplicity(t *testing.T) {
	now := time.Now()
	// Direct edge a-c plus the longer route a-b-c.
	reader := &fakeReader{relations: []*types.RelationVersion{
		relationBetween("rel_ab", "ent_a", "ent_b", "a-b", now),
		relationBetween("rel_bc", "ent_b", "ent_c", "b-c", now),
		relationBetween("rel_ac", "ent_a", "ent_c", "a-c", now.Add(-time.Hour)),
	}}
	tr := NewTraverser(reader, nil)

	paths, err := tr.Paths(context.Background(), "ent_a", "ent_c", 3)
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2", len(paths))
	}
	if paths[0].Hops() != 1 || paths[1].Hops() != 2 {
		t.Error("paths must order by ascending hop count")
	}
	for _, p := range paths {
		seen := map[string]bool{}
		for _, e := range p.Entities {
			if seen[e] {
				t.Errorf("path revisits entity %s", e)
			}
			seen[e] = true
		}
	}
}

func TestPathsNoRoute(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{relations: []*types.RelationVersion{
		relationBetween("rel_ab", "ent_a", "ent_b", "a-b", now),
	}}
	tr := NewTraverser(reader, nil)

	paths, err := tr.Paths(context.Background(), "ent_a", "ent_z", 5)
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("disconnected query returned %d paths, want none", len(paths))
	}
}

func TestPathsValidation(t *testing.T) {
	tr := NewTraverser(&fakeReader{}, nil)
	ctx := context.Background()

	if _, err := tr.Paths(ctx, "ent_a", "ent_b", 0); !errors.Is(err, types.ErrInvalidQuery) {
		t.Errorf("max_hops=0 error = %v, want ErrInvalidQuery", err)
	}
	if _, err := tr.Paths(ctx, "", "ent_b", 2); !errors.Is(err, types.ErrInvalidQuery) {
		t.Errorf("missing entity error = %v, want ErrInvalidQuery", err)
	}
}

func TestPathsClampsExcessiveHops(t *testing.T) {
	// Chain of 7 edges; with the bound clamped to 5 the far end is
	// unreachable even when the caller asks for more.
	now := time.Now()
	var rels []*types.RelationVersion
	for i := 0; i < 7; i++ {
		rels = append(rels, relationBetween(
			fmt.Sprintf("rel_%d", i),
			fmt.Sprintf("ent_%d", i),
			fmt.Sprintf("ent_%d", i+1),
			"link", now))
	}
	tr := NewTraverser(&fakeReader{relations: rels}, nil)

	paths, err := tr.Paths(context.Background(), "ent_0", "ent_7", 10)
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("clamped traversal returned %d paths, want none", len(paths))
	}

	paths, err = tr.Paths(context.Background(), "ent_0", "ent_5", 10)
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	if len(paths) != 1 {
		t.Errorf("5-hop target should be reachable under the clamp, got %d paths", len(paths))
	}
}
