package chronicle

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/soundprediction/chronicle/pkg/search"
	"github.com/soundprediction/chronicle/pkg/store"
	"github.com/soundprediction/chronicle/pkg/types"
)

// Config configures a Client.
type Config struct {
	// Path is the storage directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps the whole graph in memory.
	InMemory bool
	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client is the session object for one graph instance. It owns the storage
// handle and serializes commits; all components receive it explicitly rather
// than through ambient globals. A Client is safe for concurrent use.
type Client struct {
	store     *store.Store
	searcher  *search.Searcher
	traverser *search.Traverser
	logger    *slog.Logger

	// commitMu makes the graph single-writer: successive decision batches
	// apply strictly in order.
	commitMu sync.Mutex
	closed   atomic.Bool
}

// Open opens or creates a graph at cfg.Path.
func Open(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(store.Options{
		Path:     cfg.Path,
		InMemory: cfg.InMemory,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return &Client{
		store:     st,
		searcher:  search.NewSearcher(st, logger),
		traverser: search.NewTraverser(st, logger),
		logger:    logger,
	}, nil
}

// Close flushes and closes the underlying storage. Further operations on the
// client fail with ErrClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Debug("closing client")
	return c.store.Close()
}

// Store exposes the persistence layer for supporting tools (export, mirror).
func (c *Client) Store() *store.Store {
	return c.store
}

func (c *Client) checkOpen() error {
	if c.closed.Load() {
		return types.ErrClosed
	}
	return nil
}
