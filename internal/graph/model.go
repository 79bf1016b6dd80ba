// Package graph provides the code-structure graph for Scout.
//
// It defines the node and edge types that represent a scanned source
// tree (files, the functions and classes they contain, packages,
// external modules) and the directed edges between them (CONTAINS,
// IMPORTS).
package graph

// NodeKind represents the type of a graph node.
//
// The zero value is KindLazy: a node materialized only as an edge
// target, carrying no attributes until a later call classifies it.
type NodeKind string

const (
	KindFile           NodeKind = "file"
	KindFunction       NodeKind = "function"
	KindClass          NodeKind = "class"
	KindPackage        NodeKind = "package"
	KindProject        NodeKind = "project"
	KindExternalModule NodeKind = "external_module"
	KindLazy           NodeKind = ""
)

// EdgeKind represents the relationship carried by a graph edge.
type EdgeKind string

const (
	EdgeContains EdgeKind = "CONTAINS"
	EdgeImports  EdgeKind = "IMPORTS"
)

// Node is a node in the code graph.
//
// Typed fields cover the attributes the engine itself reads and
// writes; Extra preserves any foreign attributes found in a loaded
// graph (or stamped by enrichment passes) so they survive save/load
// and upsert cycles untouched.
type Node struct {
	// ID is the unique identifier. Files use their relative path,
	// code elements "{file}::{name}", packages their directory path,
	// projects "project::{name}" and external modules
	// "external::{name}".
	ID string

	// Kind is the node type. KindLazy for unclassified nodes.
	Kind NodeKind

	// Name is the entity name (function name, package segment,
	// module name). Unset for file nodes.
	Name string

	// Size is the file size in bytes (file nodes only).
	Size int64

	// TokenEst is the estimated token count, Size/4 (file nodes only).
	TokenEst int64

	// StartLine and EndLine are 1-indexed, inclusive (code elements only).
	StartLine int
	EndLine   int

	// Level is the hierarchy level stamped by BuildHierarchy.
	// Nil until stamped.
	Level *int

	// Extra holds attributes the engine does not interpret.
	Extra map[string]any
}

// IsCodeElement reports whether the node is a function or class node.
func (n *Node) IsCodeElement() bool {
	return n.Kind == KindFunction || n.Kind == KindClass
}

// edgeKey identifies an edge by its endpoints and relationship.
// AddDependency idempotency and the one-CONTAINS-parent invariant both
// fall out of this identity.
type edgeKey struct {
	Source string
	Target string
	Rel    EdgeKind
}

// Edge is a directed edge in the code graph.
type Edge struct {
	Source string
	Target string
	Rel    EdgeKind

	// Extra holds attributes the engine does not interpret.
	Extra map[string]any
}

func (e *Edge) key() edgeKey {
	return edgeKey{Source: e.Source, Target: e.Target, Rel: e.Rel}
}

// CodeElement describes a parsed function or class to be attached
// under a file node.
type CodeElement struct {
	// Name is the symbol name.
	Name string

	// Kind is KindFunction or KindClass.
	Kind NodeKind

	// StartLine and EndLine are 1-indexed, inclusive.
	StartLine int
	EndLine   int
}

// ExternalModuleID returns the node ID for an external module name.
func ExternalModuleID(name string) string {
	return "external::" + name
}

// ProjectID returns the node ID for a project name.
func ProjectID(name string) string {
	return "project::" + name
}

// CodeElementID returns the node ID for a code element inside a file.
func CodeElementID(fileID, name string) string {
	return fileID + "::" + name
}

// TokenEstimate converts a byte size into the token estimate used on
// file nodes (integer division by four).
func TokenEstimate(size int64) int64 {
	return size / 4
}

func intPtr(v int) *int { return &v }
