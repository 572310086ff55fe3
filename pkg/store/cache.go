package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/soundprediction/chronicle/pkg/types"
)

// hashContent is the exact-content digest used for snapshot change detection.
// No normalization: byte-identical content, and only that, dedups.
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func newCacheID(physicalTime time.Time) string {
	return fmt.Sprintf("cache_%d_%s", physicalTime.Unix(), uuid.NewString())
}

// SaveCache appends a scene snapshot to the activity stream, unless the
// content hash equals the stream's latest snapshot, in which case the
// existing id is returned with changed=false and nothing is written.
func (s *Store) SaveCache(ctx context.Context, content string, physicalTime time.Time, activityType string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	hash := hashContent(content)
	var id string
	var changed bool

	// Saves run outside the commit lock, so two streams writing at once can
	// hit Badger's optimistic conflict detection. Conflicts are retried; an
	// exhausted retry surfaces as a storage error, not a raw badger one.
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			var head streamHead
			err := getJSON(txn, cacheHeadKey(activityType), &head)
			if err != nil && !errors.Is(err, types.ErrNotFound) {
				return err
			}
			if err == nil && head.Hash == hash {
				id = head.ID
				changed = false
				return nil
			}

			id = newCacheID(physicalTime)
			changed = true
			snapshot := &types.MemoryCache{
				ID:           id,
				Content:      content,
				PhysicalTime: physicalTime,
				ActivityType: activityType,
				ContentHash:  hash,
			}
			if err := setJSON(txn, cacheKey(id), snapshot); err != nil {
				return err
			}
			if err := txn.Set(cacheStreamKey(activityType, head.Count), []byte(id)); err != nil {
				return fmt.Errorf("%w: writing cache stream entry: %v", types.ErrStorage, err)
			}
			return setJSON(txn, cacheHeadKey(activityType), &streamHead{
				ID:    id,
				Hash:  hash,
				Count: head.Count + 1,
			})
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if errors.Is(err, badger.ErrConflict) {
		return "", false, fmt.Errorf("%w: concurrent cache save: %v", types.ErrStorage, err)
	}
	if err != nil {
		return "", false, err
	}

	s.logger.Debug("cache saved", "id", id, "activity_type", activityType, "changed", changed)
	return id, changed, nil
}

// LoadCache returns the snapshot with the given id.
func (s *Store) LoadCache(ctx context.Context, id string) (*types.MemoryCache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var snapshot types.MemoryCache
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, cacheKey(id), &snapshot)
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// LatestCache returns the most recent snapshot in the activity stream.
func (s *Store) LatestCache(ctx context.Context, activityType string) (*types.MemoryCache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var snapshot types.MemoryCache
	err := s.db.View(func(txn *badger.Txn) error {
		var head streamHead
		if err := getJSON(txn, cacheHeadKey(activityType), &head); err != nil {
			return err
		}
		return getJSON(txn, cacheKey(head.ID), &snapshot)
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListCaches returns every snapshot in the activity stream in append order.
func (s *Store) ListCaches(ctx context.Context, activityType string) ([]*types.MemoryCache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*types.MemoryCache
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixCacheStream + activityType + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("%w: reading cache stream: %v", types.ErrStorage, err)
			}
			var snapshot types.MemoryCache
			if err := getJSON(txn, cacheKey(string(val)), &snapshot); err != nil {
				return err
			}
			out = append(out, &snapshot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
