// Package types defines the core data model for the chronicle store:
// immutable entity and relation versions grouped under stable logical ids,
// scene snapshots (memory caches), commit records, and the decision inputs
// consumed by the commit engine.
package types
