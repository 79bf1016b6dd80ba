// Package graph provides the in-memory code graph for Scout.
//
// CodeGraph is a lightweight, map-backed directed graph with adjacency
// indexes so that neighborhood queries scale with the result set rather
// than the total graph size. Mutation is single-writer by contract: one
// updater holds the graph at a time, guarded externally by an advisory
// lock. The internal RWMutex only protects read-mostly consumers
// (renderers, the MCP layer) running against a quiescent graph.
package graph

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// Sentinel errors for contract violations.
var (
	// ErrNodeNotFound is returned when an operation references a node
	// ID that does not exist in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNotAFile is returned when a code element is added under a
	// node that exists but is not a file node.
	ErrNotAFile = errors.New("parent node is not a file")
)

// Stats summarizes graph size.
type Stats struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// CodeGraph is a directed graph of files, code elements, packages and
// external modules.
type CodeGraph struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	edges    map[edgeKey]*Edge
	outgoing map[string]map[edgeKey]*Edge
	incoming map[string]map[edgeKey]*Edge
}

// New creates a new empty code graph.
func New() *CodeGraph {
	g := &CodeGraph{}
	g.reset()
	return g
}

// reset reinitializes all maps. Callers must hold the write lock (or
// own the graph exclusively, as New does).
func (g *CodeGraph) reset() {
	g.nodes = make(map[string]*Node)
	g.edges = make(map[edgeKey]*Edge)
	g.outgoing = make(map[string]map[edgeKey]*Edge)
	g.incoming = make(map[string]map[edgeKey]*Edge)
}

// NodeCount returns the number of nodes.
func (g *CodeGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *CodeGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Stats returns node and edge counts.
func (g *CodeGraph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Stats{Nodes: len(g.nodes), Edges: len(g.edges)}
}

// HasNode reports whether a node with the given ID exists.
func (g *CodeGraph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Node returns the node with the given ID, or nil.
func (g *CodeGraph) Node(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Nodes returns all nodes, sorted by ID for deterministic iteration.
func (g *CodeGraph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Edges returns all edges, sorted by (source, target, relationship).
func (g *CodeGraph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Source != result[j].Source {
			return result[i].Source < result[j].Source
		}
		if result[i].Target != result[j].Target {
			return result[i].Target < result[j].Target
		}
		return result[i].Rel < result[j].Rel
	})
	return result
}

// AddFile upserts a file node keyed by its relative path. Size and the
// derived token estimate are overwritten on repeat calls; any Extra
// attributes already on the node are preserved.
func (g *CodeGraph) AddFile(relPath string, size int64) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[relPath]
	if !ok {
		node = &Node{ID: relPath}
		g.nodes[relPath] = node
	}
	node.Kind = KindFile
	node.Size = size
	node.TokenEst = TokenEstimate(size)
	return node
}

// AddCodeElement upserts a function or class node under an existing
// file node and links it with a CONTAINS edge. It fails if the parent
// is absent or not a file node.
func (g *CodeGraph) AddCodeElement(parentFileID string, el CodeElement) (string, error) {
	if el.Kind != KindFunction && el.Kind != KindClass {
		return "", fmt.Errorf("code element %q: unsupported kind %q", el.Name, el.Kind)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	parent, ok := g.nodes[parentFileID]
	if !ok {
		return "", fmt.Errorf("add code element %q under %q: %w", el.Name, parentFileID, ErrNodeNotFound)
	}
	if parent.Kind != KindFile {
		return "", fmt.Errorf("add code element %q under %q (type %q): %w", el.Name, parentFileID, parent.Kind, ErrNotAFile)
	}

	id := CodeElementID(parentFileID, el.Name)
	node, ok := g.nodes[id]
	if !ok {
		node = &Node{ID: id}
		g.nodes[id] = node
	}
	node.Kind = el.Kind
	node.Name = el.Name
	node.StartLine = el.StartLine
	node.EndLine = el.EndLine

	g.addEdgeLocked(&Edge{Source: parentFileID, Target: id, Rel: EdgeContains})
	return id, nil
}

// AddDependency adds an IMPORTS edge from sourceID to targetID. The
// source must exist; a missing target is created as a lazy node with no
// attributes. Repeating the same pair changes nothing.
func (g *CodeGraph) AddDependency(sourceID, targetID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[sourceID]; !ok {
		return fmt.Errorf("add dependency from %q: %w", sourceID, ErrNodeNotFound)
	}
	if _, ok := g.nodes[targetID]; !ok {
		g.nodes[targetID] = &Node{ID: targetID}
	}

	g.addEdgeLocked(&Edge{Source: sourceID, Target: targetID, Rel: EdgeImports})
	return nil
}

// AddExternalModule creates or reuses the external-module node for the
// given module name and returns its ID. An existing node only gets its
// missing attributes filled in; attributes already present (including
// Extra attributes set by other callers) are never overwritten.
func (g *CodeGraph) AddExternalModule(name string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := ExternalModuleID(name)
	node, ok := g.nodes[id]
	if !ok {
		g.nodes[id] = &Node{ID: id, Kind: KindExternalModule, Name: name}
		return id
	}
	if node.Kind == KindLazy {
		node.Kind = KindExternalModule
	}
	if node.Name == "" {
		node.Name = name
	}
	return id
}

// RemoveFile removes the file node and every node reachable from it
// via outgoing CONTAINS edges, along with all edges incident to any
// removed node. Returns the number of nodes removed (zero if the ID is
// absent).
func (g *CodeGraph) RemoveFile(fileID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[fileID]; !ok {
		return 0
	}

	// Closure over outgoing CONTAINS. Visited-set keeps cycles from
	// looping, although CONTAINS is a tree by construction.
	doomed := []string{fileID}
	seen := map[string]bool{fileID: true}
	for i := 0; i < len(doomed); i++ {
		for key, e := range g.outgoing[doomed[i]] {
			if key.Rel != EdgeContains || seen[e.Target] {
				continue
			}
			seen[e.Target] = true
			doomed = append(doomed, e.Target)
		}
	}

	for _, id := range doomed {
		delete(g.nodes, id)
		g.cascadeEdgesLocked(id)
	}
	return len(doomed)
}

// BuildHierarchy derives package nodes from the directory prefixes of
// all current file nodes, links project -> package -> file with
// CONTAINS edges, and stamps levels: project 0, package always 1, file
// the depth of its path, code element its file's level plus one.
func (g *CodeGraph) BuildHierarchy(projectName string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	projectID := ProjectID(projectName)
	project, ok := g.nodes[projectID]
	if !ok {
		project = &Node{ID: projectID}
		g.nodes[projectID] = project
	}
	project.Kind = KindProject
	project.Name = projectName
	project.Level = intPtr(0)

	// Snapshot file IDs first; package creation mutates g.nodes.
	var files []*Node
	for _, n := range g.nodes {
		if n.Kind == KindFile {
			files = append(files, n)
		}
	}

	for _, file := range files {
		segments := strings.Split(file.ID, "/")
		file.Level = intPtr(len(segments))

		dir := path.Dir(file.ID)
		if dir == "." {
			g.addEdgeLocked(&Edge{Source: projectID, Target: file.ID, Rel: EdgeContains})
		} else {
			parts := strings.Split(dir, "/")
			for i := range parts {
				pkgPath := strings.Join(parts[:i+1], "/")
				pkg, ok := g.nodes[pkgPath]
				if !ok {
					pkg = &Node{ID: pkgPath}
					g.nodes[pkgPath] = pkg
				}
				pkg.Kind = KindPackage
				pkg.Name = parts[i]
				// Packages are flattened to level 1 regardless of
				// nesting depth. Downstream aggregation relies on this;
				// see the compatibility note in DESIGN.md before
				// changing it.
				pkg.Level = intPtr(1)

				if i == 0 {
					g.addEdgeLocked(&Edge{Source: projectID, Target: pkgPath, Rel: EdgeContains})
				} else {
					parentPath := strings.Join(parts[:i], "/")
					g.addEdgeLocked(&Edge{Source: parentPath, Target: pkgPath, Rel: EdgeContains})
				}
			}
			g.addEdgeLocked(&Edge{Source: dir, Target: file.ID, Rel: EdgeContains})
		}

		// Stamp contained code elements one below their file.
		for key, e := range g.outgoing[file.ID] {
			if key.Rel != EdgeContains {
				continue
			}
			if child, ok := g.nodes[e.Target]; ok && child.IsCodeElement() {
				child.Level = intPtr(len(segments) + 1)
			}
		}
	}
}

// Outgoing returns edges originating from the given node, optionally
// filtered to one relationship.
func (g *CodeGraph) Outgoing(nodeID string, rel ...EdgeKind) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return collectEdges(g.outgoing[nodeID], rel...)
}

// Incoming returns edges targeting the given node, optionally filtered
// to one relationship.
func (g *CodeGraph) Incoming(nodeID string, rel ...EdgeKind) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return collectEdges(g.incoming[nodeID], rel...)
}

func collectEdges(edges map[edgeKey]*Edge, rel ...EdgeKind) []*Edge {
	if edges == nil {
		return nil
	}
	result := make([]*Edge, 0, len(edges))
	for _, e := range edges {
		if len(rel) > 0 && rel[0] != "" && e.Rel != rel[0] {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Target != result[j].Target {
			return result[i].Target < result[j].Target
		}
		return result[i].Source < result[j].Source
	})
	return result
}

// addEdgeLocked inserts an edge unless the identical (source, target,
// relationship) triple already exists. Must be called with the write
// lock held.
func (g *CodeGraph) addEdgeLocked(e *Edge) {
	key := e.key()
	if _, ok := g.edges[key]; ok {
		return
	}
	g.edges[key] = e
	if g.outgoing[e.Source] == nil {
		g.outgoing[e.Source] = make(map[edgeKey]*Edge)
	}
	g.outgoing[e.Source][key] = e
	if g.incoming[e.Target] == nil {
		g.incoming[e.Target] = make(map[edgeKey]*Edge)
	}
	g.incoming[e.Target][key] = e
}

// cascadeEdgesLocked removes every edge where the node is source or
// target. Must be called with the write lock held.
func (g *CodeGraph) cascadeEdgesLocked(nodeID string) {
	for key, e := range g.outgoing[nodeID] {
		delete(g.edges, key)
		delete(g.incoming[e.Target], key)
	}
	delete(g.outgoing, nodeID)

	for key, e := range g.incoming[nodeID] {
		delete(g.edges, key)
		delete(g.outgoing[e.Source], key)
	}
	delete(g.incoming, nodeID)
}
