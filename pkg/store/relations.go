package store

import (
	"context"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/soundprediction/chronicle/pkg/types"
)

// GetRelationVersion returns the relation version with the given version id.
func (s *Store) GetRelationVersion(ctx context.Context, versionID string) (*types.RelationVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var v types.RelationVersion
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, relationVersionKey(versionID), &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// RelationHistory returns every version of the logical relation, ascending
// by physical time with ties broken by insertion order.
func (s *Store) RelationHistory(ctx context.Context, relationID string) ([]*types.RelationVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var history []*types.RelationVersion
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		history, err = relationHistoryTxn(txn, relationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// LatestRelationVersion returns the chain's most recent version.
func (s *Store) LatestRelationVersion(ctx context.Context, relationID string) (*types.RelationVersion, error) {
	history, err := s.RelationHistory(ctx, relationID)
	if err != nil {
		return nil, err
	}
	return history[len(history)-1], nil
}

// LatestRelations returns the current head version of every logical relation.
func (s *Store) LatestRelations(ctx context.Context) ([]*types.RelationVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*types.RelationVersion
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixRelationHead)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			relationID := string(it.Item().Key()[len(prefix):])
			history, err := relationHistoryTxn(txn, relationID)
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

// EntityRelations returns every relation version one of whose endpoints
// projects to the logical entity. The adjacency index covers all versions,
// so callers filter to chain heads when they want only current relations.
func (s *Store) EntityRelations(ctx context.Context, entityID string) ([]*types.RelationVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*types.RelationVersion
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixRelationIndex + entityID + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			relVersionID := string(it.Item().Key()[len(prefix):])
			var v types.RelationVersion
			if err := getJSON(txn, relationVersionKey(relVersionID), &v); err != nil {
				return err
			}
			out = append(out, &v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PhysicalTime.Before(out[j].PhysicalTime)
	})
	return out, nil
}

func relationHistoryTxn(txn *badger.Txn, relationID string) ([]*types.RelationVersion, error) {
	prefix := []byte(prefixRelationChain + relationID + ":")
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var history []*types.RelationVersion
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: reading relation chain %s: %v", types.ErrStorage, relationID, err)
		}
		var v types.RelationVersion
		if err := getJSON(txn, relationVersionKey(string(val)), &v); err != nil {
			return nil, err
		}
		history = append(history, &v)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: relation %s", types.ErrNotFound, relationID)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].PhysicalTime.Before(history[j].PhysicalTime)
	})
	return history, nil
}
