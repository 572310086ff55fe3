package store

import (
	"context"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/soundprediction/chronicle/pkg/types"
)

// GetEntityVersion returns the entity version with the given version id.
func (s *Store) GetEntityVersion(ctx context.Context, versionID string) (*types.EntityVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var v types.EntityVersion
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, entityVersionKey(versionID), &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// EntityHistory returns every version of the logical entity, ascending by
// physical time with ties broken by insertion order. Fails with ErrNotFound
// when the logical id is unknown.
func (s *Store) EntityHistory(ctx context.Context, entityID string) ([]*types.EntityVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var history []*types.EntityVersion
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		history, err = entityHistoryTxn(txn, entityID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// LatestEntityVersion returns the chain's most recent version: maximum
// physical time, latest inserted on ties.
func (s *Store) LatestEntityVersion(ctx context.Context, entityID string) (*types.EntityVersion, error) {
	history, err := s.EntityHistory(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return history[len(history)-1], nil
}

// EntityVersionCount returns the number of versions in the logical chain.
func (s *Store) EntityVersionCount(ctx context.Context, entityID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var head chainHead
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, entityHeadKey(entityID), &head)
	})
	if err != nil {
		return 0, err
	}
	return int(head.Count), nil
}

// LatestEntities returns the current head version of every logical entity.
func (s *Store) LatestEntities(ctx context.Context) ([]*types.EntityVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*types.EntityVersion
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixEntityHead)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			entityID := string(it.Item().Key()[len(prefix):])
			history, err := entityHistoryTxn(txn, entityID)
			if err != nil {
				return err
			}
			out = append(out, history[len(history)-1])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// entityHistoryTxn loads a chain inside an open transaction. The chain index
// yields insertion order; the stable sort by physical time preserves it for
// equal timestamps.
func entityHistoryTxn(txn *badger.Txn, entityID string) ([]*types.EntityVersion, error) {
	prefix := []byte(prefixEntityChain + entityID + ":")
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var history []*types.EntityVersion
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: reading entity chain %s: %v", types.ErrStorage, entityID, err)
		}
		var v types.EntityVersion
		if err := getJSON(txn, entityVersionKey(string(val)), &v); err != nil {
			return nil, err
		}
		history = append(history, &v)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: entity %s", types.ErrNotFound, entityID)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].PhysicalTime.Before(history[j].PhysicalTime)
	})
	return history, nil
}
