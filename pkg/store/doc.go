// Package store persists the chronicle graph in Badger: append-only entity
// and relation version logs with per-logical-id chain indexes, an append-only
// commit log ordered by world time, and content-hashed scene snapshot streams.
//
// All multi-record writes go through a single Badger transaction, so a commit
// becomes visible to readers as one atomic boundary. Readers always observe
// either the pre-commit or the post-commit state of a batch, never part of it.
package store
