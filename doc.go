// Package chronicle is a versioned temporal knowledge graph store. Entities
// and relations carry immutable version chains grouped under stable logical
// ids; batches of externally-judged update decisions apply atomically as
// commits; retrieval covers similarity search, bounded multi-hop path
// finding, and temporal grouping by originating scene.
//
// The store is deliberately agnostic to where facts come from: extraction,
// update judgment, and embedding computation happen outside and arrive as
// structured inputs. See the extract package for the capability contract.
package chronicle
