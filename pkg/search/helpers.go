package search

import (
	"math"
	"strings"
)

// jaccardSimilarity is the overlap ratio between the lowercase rune sets of
// two strings. Operating on runes rather than word tokens keeps it useful
// for CJK text, where whitespace tokenization is meaningless.
func jaccardSimilarity(a, b string) float64 {
	setA := runeSet(a)
	setB := runeSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range strings.ToLower(s) {
		set[r] = struct{}{}
	}
	return set
}

// cosineSimilarity between two vectors. Mismatched dimensions or zero
// magnitudes score zero rather than erroring: stored embeddings are opaque
// and a bad one should not fail the whole query.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom < 1e-9 {
		return 0
	}
	return dot / denom
}

// lexicalSimilarity scores a case-insensitive substring match by how much of
// the field the query covers. Exact matches score 1, misses score 0.
func lexicalSimilarity(query, field string) float64 {
	q := strings.ToLower(query)
	f := strings.ToLower(field)
	if q == "" || f == "" {
		return 0
	}
	if q == f {
		return 1
	}
	if !strings.Contains(f, q) {
		return 0
	}
	return float64(len(q)) / float64(len(f))
}
