package store

import "fmt"

// Keyspace prefixes. Records are JSON values under typed keys; chain and
// stream indexes map insertion sequence numbers to record ids.
const (
	prefixEntityVersion   = "ev:" // ev:<version_id> -> EntityVersion
	prefixRelationVersion = "rv:" // rv:<version_id> -> RelationVersion
	prefixEntityChain     = "ec:" // ec:<entity_id>:<seq> -> version_id
	prefixRelationChain   = "rc:" // rc:<relation_id>:<seq> -> version_id
	prefixEntityHead      = "eh:" // eh:<entity_id> -> chainHead
	prefixRelationHead    = "rh:" // rh:<relation_id> -> chainHead
	prefixRelationIndex   = "ri:" // ri:<entity_id>:<rel_version_id> -> relation_id
	prefixCache           = "mc:" // mc:<cache_id> -> MemoryCache
	prefixCacheStream     = "ml:" // ml:<activity_type>:<seq> -> cache_id
	prefixCacheHead       = "mh:" // mh:<activity_type> -> streamHead
	prefixCommit          = "cl:" // cl:<world_time_nanos>:<commit_id> -> Commit
)

// chainHead tracks the current tail of one logical id's version chain.
// Count doubles as the next insertion sequence number.
type chainHead struct {
	Head  string `json:"head"`
	Count uint64 `json:"count"`
}

// streamHead tracks the latest snapshot of one activity stream, with its
// content hash for change detection.
type streamHead struct {
	ID    string `json:"id"`
	Hash  string `json:"hash"`
	Count uint64 `json:"count"`
}

func entityVersionKey(versionID string) []byte {
	return []byte(prefixEntityVersion + versionID)
}

func relationVersionKey(versionID string) []byte {
	return []byte(prefixRelationVersion + versionID)
}

func entityChainKey(entityID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%016x", prefixEntityChain, entityID, seq))
}

func relationChainKey(relationID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%016x", prefixRelationChain, relationID, seq))
}

func entityHeadKey(entityID string) []byte {
	return []byte(prefixEntityHead + entityID)
}

func relationHeadKey(relationID string) []byte {
	return []byte(prefixRelationHead + relationID)
}

func relationIndexKey(entityID, relVersionID string) []byte {
	return []byte(prefixRelationIndex + entityID + ":" + relVersionID)
}

func cacheKey(cacheID string) []byte {
	return []byte(prefixCache + cacheID)
}

func cacheStreamKey(activityType string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%016x", prefixCacheStream, activityType, seq))
}

func cacheHeadKey(activityType string) []byte {
	return []byte(prefixCacheHead + activityType)
}

func commitKey(worldTimeNanos int64, commitID string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixCommit, worldTimeNanos, commitID))
}
