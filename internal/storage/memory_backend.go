package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/scoutgraph/scout-go/internal/graph"
)

// MemoryBackend is an in-process Backend, used by tests and one-shot
// CLI queries that have the graph in memory anyway.
type MemoryBackend struct {
	mu       sync.RWMutex
	g        *graph.CodeGraph
	readOnly bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{g: graph.New()}
}

// Initialize implements Backend. The path is ignored.
func (m *MemoryBackend) Initialize(_ string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = readOnly
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }

// BulkLoad implements Backend by adopting the graph reference.
func (m *MemoryBackend) BulkLoad(_ context.Context, g *graph.CodeGraph) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return errors.New("backend is read-only")
	}
	m.g = g
	return nil
}

// GetNode implements Backend.
func (m *MemoryBackend) GetNode(_ context.Context, id string) (*graph.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.g.Node(id), nil
}

// Dependencies implements Backend.
func (m *MemoryBackend) Dependencies(_ context.Context, id string) ([]*graph.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return targetsOf(m.g, m.g.Outgoing(id, graph.EdgeImports), false), nil
}

// Dependents implements Backend.
func (m *MemoryBackend) Dependents(_ context.Context, id string) ([]*graph.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return targetsOf(m.g, m.g.Incoming(id, graph.EdgeImports), true), nil
}

// Children implements Backend.
func (m *MemoryBackend) Children(_ context.Context, id string) ([]*graph.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return targetsOf(m.g, m.g.Outgoing(id, graph.EdgeContains), false), nil
}

// NodeCount implements Backend.
func (m *MemoryBackend) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.g.NodeCount()
}

// EdgeCount implements Backend.
func (m *MemoryBackend) EdgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.g.EdgeCount()
}

// targetsOf maps edges to their far-end nodes; sources when incoming
// is true, targets otherwise.
func targetsOf(g *graph.CodeGraph, edges []*graph.Edge, incoming bool) []*graph.Node {
	nodes := make([]*graph.Node, 0, len(edges))
	for _, e := range edges {
		id := e.Target
		if incoming {
			id = e.Source
		}
		if n := g.Node(id); n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes
}
