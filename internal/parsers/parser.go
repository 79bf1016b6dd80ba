// Package parsers provides the language parsers that feed the graph
// engine.
//
// A parser turns file content into a flat list of elements: functions
// and classes (which become code-element nodes) and imports (which
// drive the import resolver and never become nodes directly).
package parsers

import (
	"path"
	"sort"
	"strings"
)

// ElementKind classifies a parsed element.
type ElementKind string

const (
	ElementFunction ElementKind = "function"
	ElementClass    ElementKind = "class"
	ElementImport   ElementKind = "import"
)

// Element is one entry in a parse result.
type Element struct {
	// Kind is function, class or import.
	Kind ElementKind

	// Name is the symbol name, or the raw module path for imports.
	Name string

	// StartLine and EndLine are 1-indexed, inclusive. For imports the
	// two are equal.
	StartLine int
	EndLine   int
}

// Parser is the language-parser collaborator contract.
type Parser interface {
	// Parse extracts elements from source content. It fails with a
	// parse error on input it cannot process.
	Parse(filePath string, content []byte) ([]Element, error)

	// Language returns the language this parser handles.
	Language() string

	// Extensions returns the file extensions (with leading dot) this
	// parser accepts.
	Extensions() []string
}

// Registry maps file extensions to parsers.
type Registry struct {
	byExt map[string]Parser
}

// NewRegistry creates a registry preloaded with the built-in parsers.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Parser)}
	r.Register(NewPythonParser())
	return r
}

// Register adds a parser for each of its extensions, replacing any
// previous registration.
func (r *Registry) Register(p Parser) {
	for _, ext := range p.Extensions() {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// ForPath returns the parser responsible for the given file path, or
// nil when the extension is unsupported.
func (r *Registry) ForPath(filePath string) Parser {
	return r.byExt[strings.ToLower(path.Ext(filePath))]
}

// Extensions returns every registered extension, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
