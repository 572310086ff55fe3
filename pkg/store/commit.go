package store

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/soundprediction/chronicle/pkg/types"
)

// CommitWrite is a fully-assembled batch handed down by the commit engine:
// the commit record plus every version it references. ApplyCommit validates
// and persists the whole set in one transaction.
type CommitWrite struct {
	Commit    *types.Commit
	Entities  []*types.EntityVersion
	Relations []*types.RelationVersion
}

// ApplyCommit validates the batch against the store's integrity invariants
// and writes all records atomically. Any validation or storage failure
// aborts the transaction; partial commits are never observable.
func (s *Store) ApplyCommit(ctx context.Context, w CommitWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.Commit == nil || w.Commit.VersionCount() == 0 {
		return fmt.Errorf("%w: commit references no versions", types.ErrInvalidDecision)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		// Versions written earlier in this batch are visible to later
		// validation steps (an entity and a relation pinned to it may
		// arrive together).
		batchEntities := make(map[string]*types.EntityVersion, len(w.Entities))

		for _, v := range w.Entities {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("%w: %v", types.ErrInvalidDecision, err)
			}
			if err := validateEntityChain(txn, v, batchEntities); err != nil {
				return err
			}
			if err := writeEntityVersion(txn, v); err != nil {
				return err
			}
			batchEntities[v.VersionID] = v
		}

		batchRelations := make(map[string]*types.RelationVersion, len(w.Relations))
		for _, v := range w.Relations {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("%w: %v", types.ErrInvalidDecision, err)
			}
			if err := resolveEndpoints(txn, v, batchEntities); err != nil {
				return err
			}
			if err := validateRelationChain(txn, v, batchRelations); err != nil {
				return err
			}
			if err := writeRelationVersion(txn, v); err != nil {
				return err
			}
			batchRelations[v.VersionID] = v
		}

		return setJSON(txn, commitKey(w.Commit.WorldTime.UnixNano(), w.Commit.ID), w.Commit)
	})
	if err != nil {
		return err
	}

	s.logger.Info("commit applied",
		"commit_id", w.Commit.ID,
		"entities", len(w.Entities),
		"relations", len(w.Relations),
		"cache_id", w.Commit.CacheID)
	return nil
}

// Commits returns the full commit log ascending by world time.
func (s *Store) Commits(ctx context.Context) ([]*types.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*types.Commit
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixCommit)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("%w: reading commit log: %v", types.ErrStorage, err)
			}
			var c types.Commit
			if err := unmarshalJSON(val, &c); err != nil {
				return err
			}
			out = append(out, &c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// validateEntityChain enforces the chain invariants for one new version:
// a chain-opening version must not collide with an existing chain, and an
// appended version's predecessor must exist and not postdate it.
func validateEntityChain(txn *badger.Txn, v *types.EntityVersion, batch map[string]*types.EntityVersion) error {
	if _, err := txn.Get(entityVersionKey(v.VersionID)); err == nil {
		return fmt.Errorf("%w: entity version %s already exists", types.ErrIntegrityViolation, v.VersionID)
	}
	if v.PredecessorVersionID == "" {
		var head chainHead
		err := getJSON(txn, entityHeadKey(v.EntityID), &head)
		if err == nil {
			return fmt.Errorf("%w: entity %s already has versions, predecessor required", types.ErrIntegrityViolation, v.EntityID)
		}
		if !errors.Is(err, types.ErrNotFound) {
			return err
		}
		return nil
	}

	pred, ok := batch[v.PredecessorVersionID]
	if !ok {
		var stored types.EntityVersion
		if err := getJSON(txn, entityVersionKey(v.PredecessorVersionID), &stored); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return fmt.Errorf("%w: predecessor %s of entity version %s not found", types.ErrIntegrityViolation, v.PredecessorVersionID, v.VersionID)
			}
			return err
		}
		pred = &stored
	}
	if pred.EntityID != v.EntityID {
		return fmt.Errorf("%w: predecessor %s belongs to entity %s, not %s", types.ErrIntegrityViolation, pred.VersionID, pred.EntityID, v.EntityID)
	}
	if pred.PhysicalTime.After(v.PhysicalTime) {
		return fmt.Errorf("%w: version %s predates its predecessor %s", types.ErrIntegrityViolation, v.VersionID, pred.VersionID)
	}
	return nil
}

// resolveEndpoints looks up both pinned endpoint versions (in the current
// batch or the store), projects their logical entity ids onto the relation,
// checks the no-forward-reference invariant, and normalizes endpoint order.
func resolveEndpoints(txn *badger.Txn, v *types.RelationVersion, batch map[string]*types.EntityVersion) error {
	e1, err := lookupEndpoint(txn, v.Endpoint1VersionID, batch)
	if err != nil {
		return fmt.Errorf("%w: relation version %s endpoint1: %v", types.ErrIntegrityViolation, v.VersionID, err)
	}
	e2, err := lookupEndpoint(txn, v.Endpoint2VersionID, batch)
	if err != nil {
		return fmt.Errorf("%w: relation version %s endpoint2: %v", types.ErrIntegrityViolation, v.VersionID, err)
	}
	if e1.PhysicalTime.After(v.PhysicalTime) || e2.PhysicalTime.After(v.PhysicalTime) {
		return fmt.Errorf("%w: relation version %s references an endpoint newer than itself", types.ErrIntegrityViolation, v.VersionID)
	}

	v.Endpoint1EntityID = e1.EntityID
	v.Endpoint2EntityID = e2.EntityID
	// Relations are undirected; store endpoints in a canonical order.
	if v.Endpoint2EntityID < v.Endpoint1EntityID {
		v.Endpoint1VersionID, v.Endpoint2VersionID = v.Endpoint2VersionID, v.Endpoint1VersionID
		v.Endpoint1EntityID, v.Endpoint2EntityID = v.Endpoint2EntityID, v.Endpoint1EntityID
	}
	return nil
}

func lookupEndpoint(txn *badger.Txn, versionID string, batch map[string]*types.EntityVersion) (*types.EntityVersion, error) {
	if v, ok := batch[versionID]; ok {
		return v, nil
	}
	var stored types.EntityVersion
	if err := getJSON(txn, entityVersionKey(versionID), &stored); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("entity version %s not found", versionID)
		}
		return nil, err
	}
	return &stored, nil
}

func validateRelationChain(txn *badger.Txn, v *types.RelationVersion, batch map[string]*types.RelationVersion) error {
	if _, err := txn.Get(relationVersionKey(v.VersionID)); err == nil {
		return fmt.Errorf("%w: relation version %s already exists", types.ErrIntegrityViolation, v.VersionID)
	}
	if v.PredecessorVersionID == "" {
		var head chainHead
		err := getJSON(txn, relationHeadKey(v.RelationID), &head)
		if err == nil {
			return fmt.Errorf("%w: relation %s already has versions, predecessor required", types.ErrIntegrityViolation, v.RelationID)
		}
		if !errors.Is(err, types.ErrNotFound) {
			return err
		}
		return nil
	}

	pred, ok := batch[v.PredecessorVersionID]
	if !ok {
		var stored types.RelationVersion
		if err := getJSON(txn, relationVersionKey(v.PredecessorVersionID), &stored); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return fmt.Errorf("%w: predecessor %s of relation version %s not found", types.ErrIntegrityViolation, v.PredecessorVersionID, v.VersionID)
			}
			return err
		}
		pred = &stored
	}
	if pred.RelationID != v.RelationID {
		return fmt.Errorf("%w: predecessor %s belongs to relation %s, not %s", types.ErrIntegrityViolation, pred.VersionID, pred.RelationID, v.RelationID)
	}
	if pred.PhysicalTime.After(v.PhysicalTime) {
		return fmt.Errorf("%w: version %s predates its predecessor %s", types.ErrIntegrityViolation, v.VersionID, pred.VersionID)
	}
	return nil
}

func writeEntityVersion(txn *badger.Txn, v *types.EntityVersion) error {
	var head chainHead
	err := getJSON(txn, entityHeadKey(v.EntityID), &head)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return err
	}
	if err := setJSON(txn, entityVersionKey(v.VersionID), v); err != nil {
		return err
	}
	if err := txn.Set(entityChainKey(v.EntityID, head.Count), []byte(v.VersionID)); err != nil {
		return fmt.Errorf("%w: writing entity chain: %v", types.ErrStorage, err)
	}
	return setJSON(txn, entityHeadKey(v.EntityID), &chainHead{Head: v.VersionID, Count: head.Count + 1})
}

func writeRelationVersion(txn *badger.Txn, v *types.RelationVersion) error {
	var head chainHead
	err := getJSON(txn, relationHeadKey(v.RelationID), &head)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return err
	}
	if err := setJSON(txn, relationVersionKey(v.VersionID), v); err != nil {
		return err
	}
	if err := txn.Set(relationChainKey(v.RelationID, head.Count), []byte(v.VersionID)); err != nil {
		return fmt.Errorf("%w: writing relation chain: %v", types.ErrStorage, err)
	}
	if err := setJSON(txn, relationHeadKey(v.RelationID), &chainHead{Head: v.VersionID, Count: head.Count + 1}); err != nil {
		return err
	}
	// Adjacency entries for both projected endpoints. Self-relations get one.
	if err := txn.Set(relationIndexKey(v.Endpoint1EntityID, v.VersionID), []byte(v.RelationID)); err != nil {
		return fmt.Errorf("%w: writing relation index: %v", types.ErrStorage, err)
	}
	if v.Endpoint2EntityID != v.Endpoint1EntityID {
		if err := txn.Set(relationIndexKey(v.Endpoint2EntityID, v.VersionID), []byte(v.RelationID)); err != nil {
			return fmt.Errorf("%w: writing relation index: %v", types.ErrStorage, err)
		}
	}
	return nil
}
