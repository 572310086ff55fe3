// Package search implements retrieval over the latest entity and relation
// versions: lexical, set-similarity, and vector-similarity search, plus
// direct-relation lookup and bounded multi-hop path finding over the
// logical-entity projection of the relation graph.
package search
