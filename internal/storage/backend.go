// Package storage provides the query index the MCP layer and CLI read
// from.
//
// A backend holds a bulk-loaded snapshot of the code graph. It is a
// read-side convenience, not the source of truth: graph.json remains
// the persisted graph, and every build/update cycle reloads the
// backend from it.
package storage

import (
	"context"

	"github.com/scoutgraph/scout-go/internal/graph"
)

// Backend is the query-index contract.
//
// Implementations must be safe for concurrent readers.
type Backend interface {
	// Initialize opens or creates the backend at the given path. If
	// readOnly is true the backend rejects BulkLoad.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// BulkLoad replaces the entire index with the graph's contents.
	BulkLoad(ctx context.Context, g *graph.CodeGraph) error

	// GetNode returns the node with the given ID, or nil.
	GetNode(ctx context.Context, id string) (*graph.Node, error)

	// Dependencies returns the targets of the node's outgoing IMPORTS
	// edges.
	Dependencies(ctx context.Context, id string) ([]*graph.Node, error)

	// Dependents returns the sources of the node's incoming IMPORTS
	// edges.
	Dependents(ctx context.Context, id string) ([]*graph.Node, error)

	// Children returns the targets of the node's outgoing CONTAINS
	// edges.
	Children(ctx context.Context, id string) ([]*graph.Node, error)

	// NodeCount and EdgeCount report index size.
	NodeCount() int
	EdgeCount() int
}
