package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/soundprediction/chronicle/pkg/types"
)

// Store is the Badger-backed persistence layer. It is safe for concurrent
// use; write serialization is the commit engine's job, not the store's.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Options configures a Store.
type Options struct {
	// Path is the Badger data directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps all data in memory. Used by tests and throwaway runs.
	InMemory bool
	// Logger receives store diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Open opens or creates a store at opts.Path.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, fmt.Errorf("%w: store path is required", types.ErrStorage)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	// Badger's own logger is chatty at INFO; diagnostics go through slog instead.
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening badger at %q: %v", types.ErrStorage, opts.Path, err)
	}

	logger.Debug("store opened", "path", opts.Path, "in_memory", opts.InMemory)
	return &Store{db: db, logger: logger}, nil
}

// OpenInMemory opens a throwaway in-memory store.
func OpenInMemory() (*Store, error) {
	return Open(Options{InMemory: true})
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: closing badger: %v", types.ErrStorage, err)
	}
	return nil
}

// getJSON reads the value at key into out. Returns types.ErrNotFound when
// the key is absent.
func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return types.ErrNotFound
		}
		return fmt.Errorf("%w: reading %s: %v", types.ErrStorage, key, err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", types.ErrStorage, key, err)
	}
	if err := json.Unmarshal(val, out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", types.ErrStorage, key, err)
	}
	return nil
}

// setJSON writes v at key as JSON.
func setJSON(txn *badger.Txn, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", types.ErrStorage, key, err)
	}
	if err := txn.Set(key, val); err != nil {
		return fmt.Errorf("%w: writing %s: %v", types.ErrStorage, key, err)
	}
	return nil
}

// unmarshalJSON decodes a raw value, wrapping decode failures as storage errors.
func unmarshalJSON(val []byte, out any) error {
	if err := json.Unmarshal(val, out); err != nil {
		return fmt.Errorf("%w: decoding record: %v", types.ErrStorage, err)
	}
	return nil
}
