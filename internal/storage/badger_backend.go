package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/scoutgraph/scout-go/internal/graph"
)

// Key layout. The NUL separator cannot appear in node IDs (they are
// paths and path-derived strings), so prefix scans never bleed across
// neighboring IDs.
const (
	prefixNode = "n:"
	prefixOut  = "o:"
	prefixIn   = "i:"
	keySep     = "\x00"
)

// BadgerBackend is a BadgerDB-backed query index that survives process
// restarts, so `scout mcp` can serve a previously built graph without
// reloading graph.json.
type BadgerBackend struct {
	mu        sync.RWMutex
	db        *badger.DB
	readOnly  bool
	nodeCount int
	edgeCount int
}

// NewBadgerBackend creates an unopened Badger backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the database at path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithLoggingLevel(badger.ERROR)
	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger at %s: %w", path, err)
	}
	b.db = db
	b.readOnly = readOnly
	b.nodeCount = b.countPrefix(prefixNode)
	b.edgeCount = b.countPrefix(prefixOut)
	return nil
}

// Close implements Backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// BulkLoad implements Backend by replacing the index with the graph's
// contents.
func (b *BadgerBackend) BulkLoad(ctx context.Context, g *graph.CodeGraph) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return errors.New("backend not initialized")
	}
	if b.readOnly {
		return errors.New("backend is read-only")
	}
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	nodes := g.Nodes()
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encoding node %s: %w", n.ID, err)
		}
		if err := wb.Set([]byte(prefixNode+n.ID), data); err != nil {
			return err
		}
	}

	edges := g.Edges()
	for _, e := range edges {
		outKey := prefixOut + e.Source + keySep + string(e.Rel) + keySep + e.Target
		inKey := prefixIn + e.Target + keySep + string(e.Rel) + keySep + e.Source
		if err := wb.Set([]byte(outKey), nil); err != nil {
			return err
		}
		if err := wb.Set([]byte(inKey), nil); err != nil {
			return err
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flushing index: %w", err)
	}
	b.nodeCount = len(nodes)
	b.edgeCount = len(edges)
	return nil
}

// GetNode implements Backend.
func (b *BadgerBackend) GetNode(_ context.Context, id string) (*graph.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, errors.New("backend not initialized")
	}

	var node *graph.Node
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixNode + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			node = &graph.Node{}
			return json.Unmarshal(val, node)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading node %s: %w", id, err)
	}
	return node, nil
}

// Dependencies implements Backend.
func (b *BadgerBackend) Dependencies(ctx context.Context, id string) ([]*graph.Node, error) {
	return b.neighbors(ctx, prefixOut, id, graph.EdgeImports)
}

// Dependents implements Backend.
func (b *BadgerBackend) Dependents(ctx context.Context, id string) ([]*graph.Node, error) {
	return b.neighbors(ctx, prefixIn, id, graph.EdgeImports)
}

// Children implements Backend.
func (b *BadgerBackend) Children(ctx context.Context, id string) ([]*graph.Node, error) {
	return b.neighbors(ctx, prefixOut, id, graph.EdgeContains)
}

// NodeCount implements Backend.
func (b *BadgerBackend) NodeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nodeCount
}

// EdgeCount implements Backend.
func (b *BadgerBackend) EdgeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.edgeCount
}

// neighbors scans one adjacency prefix and loads the far-end nodes.
// Edge endpoints without a stored node (lazy nodes are stored too, so
// this means index corruption) are skipped.
func (b *BadgerBackend) neighbors(ctx context.Context, direction, id string, rel graph.EdgeKind) ([]*graph.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, errors.New("backend not initialized")
	}

	scanPrefix := []byte(direction + id + keySep + string(rel) + keySep)
	var ids []string
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: scanPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			ids = append(ids, string(bytes.TrimPrefix(key, scanPrefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning edges of %s: %w", id, err)
	}

	nodes := make([]*graph.Node, 0, len(ids))
	for _, nodeID := range ids {
		n, err := b.getNodeLocked(nodeID)
		if err != nil {
			return nil, err
		}
		if n != nil {
			nodes = append(nodes, n)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// getNodeLocked reads one node. Callers hold at least the read lock.
func (b *BadgerBackend) getNodeLocked(id string) (*graph.Node, error) {
	var node *graph.Node
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixNode + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			node = &graph.Node{}
			return json.Unmarshal(val, node)
		})
	})
	return node, err
}

// countPrefix counts keys under a prefix; used to restore counters on
// reopen.
func (b *BadgerBackend) countPrefix(prefix string) int {
	if b.db == nil {
		return 0
	}
	count := 0
	_ = b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count
}
