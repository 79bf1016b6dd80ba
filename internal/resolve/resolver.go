// Package resolve turns raw import names into graph edges.
//
// Resolution is a pure decision procedure over the current node set:
// the first of four path-derivation strategies whose target already
// exists in the graph wins, and an unresolved name always falls back to
// an external-module placeholder rather than being dropped.
package resolve

import (
	"fmt"
	"path"
	"strings"
)

// Graph is the subset of the graph store the resolver needs: read
// access to the node set plus the two mutation primitives it drives.
type Graph interface {
	HasNode(id string) bool
	AddDependency(sourceID, targetID string) error
	AddExternalModule(name string) string
}

// Resolver resolves import names for files in a single graph.
type Resolver struct {
	g Graph
}

// New creates a resolver bound to the given graph.
func New(g Graph) *Resolver {
	return &Resolver{g: g}
}

// Candidates returns the resolution candidates for an import, in the
// order they are tried:
//
//  1. flat module next to the importing file
//  2. dotted path from the project root
//  3. package (init file) next to the importing file
//  4. package (init file) from the project root
func Candidates(sourceFile, importName string) []string {
	dir := path.Dir(sourceFile)
	dotted := strings.ReplaceAll(importName, ".", "/")
	return []string{
		path.Join(dir, importName+".py"),
		dotted + ".py",
		path.Join(dir, importName, "__init__.py"),
		dotted + "/__init__.py",
	}
}

// ResolveImport resolves one raw import name for the given source file
// and records exactly one IMPORTS edge. When no candidate path exists
// in the graph it links to a created-or-reused external-module node;
// an unresolved import is never silently dropped. The resolved target
// node ID is returned.
func (r *Resolver) ResolveImport(sourceFile, importName string) (string, error) {
	for _, candidate := range Candidates(sourceFile, importName) {
		if r.g.HasNode(candidate) {
			if err := r.g.AddDependency(sourceFile, candidate); err != nil {
				return "", fmt.Errorf("resolving %q in %s: %w", importName, sourceFile, err)
			}
			return candidate, nil
		}
	}

	target := r.g.AddExternalModule(importName)
	if err := r.g.AddDependency(sourceFile, target); err != nil {
		return "", fmt.Errorf("resolving %q in %s: %w", importName, sourceFile, err)
	}
	return target, nil
}
