package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scoutgraph/scout-go/internal/detect"
	"github.com/scoutgraph/scout-go/internal/graph"
	"github.com/scoutgraph/scout-go/internal/parsers"
	"github.com/scoutgraph/scout-go/internal/resolve"
)

// BuildResult summarizes a full scan.
type BuildResult struct {
	Files        int     `json:"files"`
	Elements     int     `json:"elements"`
	Imports      int     `json:"imports"`
	DurationSecs float64 `json:"duration_secs"`
}

// ProgressCallback is called with a phase name and progress in [0, 1].
type ProgressCallback func(phase string, progress float64)

// Build walks the whole tree once and produces the initial graph.
//
// It uses the same primitives and ordering as the incremental updater:
// every file node is created before any import is resolved, so imports
// between scanned files always land on real nodes. The baseline state
// is seeded with the current commit (when available) and a content
// digest per discovered file.
func Build(ctx context.Context, root, projectName string, state *detect.BuildState, progress ProgressCallback) (*graph.CodeGraph, *BuildResult, error) {
	started := time.Now()
	result := &BuildResult{}
	registry := parsers.NewRegistry()
	log := slog.Default()

	report := func(phase string, pct float64) {
		if progress != nil {
			progress(phase, pct)
		}
	}

	report("Walking files", 0.0)
	entries, err := Walk(root, registry.Extensions())
	if err != nil {
		return nil, nil, fmt.Errorf("walking %s: %w", root, err)
	}
	result.Files = len(entries)
	report("Walking files", 1.0)

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	g := graph.New()

	// Pass 1: file nodes only.
	report("Creating file nodes", 0.0)
	for _, entry := range entries {
		g.AddFile(entry.RelPath, entry.Size)
	}
	report("Creating file nodes", 1.0)

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// Pass 2: parse content, attach code elements, resolve imports.
	report("Parsing code", 0.0)
	resolver := resolve.New(g)
	for i, entry := range entries {
		elements, imports := ApplyFile(g, resolver, registry, entry.Path, entry.RelPath, log)
		result.Elements += elements
		result.Imports += imports
		report("Parsing code", float64(i+1)/float64(len(entries)))
	}
	report("Parsing code", 1.0)

	report("Building hierarchy", 0.0)
	g.BuildHierarchy(projectName)
	report("Building hierarchy", 1.0)

	// Seed the change-detection baseline.
	if state != nil {
		if hash, ok := detect.CurrentCommit(root); ok {
			state.CommitHash = hash
		}
		state.FileHashes = make(map[string]string, len(entries))
		for _, entry := range entries {
			digest, err := detect.HashFile(entry.Path)
			if err != nil {
				log.Warn("skipping hash for unreadable file", "path", entry.RelPath, "error", err)
				continue
			}
			state.FileHashes[entry.RelPath] = digest
		}
	}

	result.DurationSecs = time.Since(started).Seconds()
	return g, result, nil
}

// ApplyFile reads and parses one file and applies its elements to the
// graph: functions and classes become code-element nodes, imports are
// handed to the resolver. Read and parse failures are logged and the
// file is skipped; they never abort the caller's cycle. Returns the
// number of code elements and imports applied.
func ApplyFile(g *graph.CodeGraph, resolver *resolve.Resolver, registry *parsers.Registry, absPath, relPath string, log *slog.Logger) (elements, imports int) {
	parser := registry.ForPath(relPath)
	if parser == nil {
		return 0, 0
	}

	content, err := ReadFile(absPath)
	if err != nil {
		log.Warn("skipping unreadable file", "path", relPath, "error", err)
		return 0, 0
	}

	parsed, err := parser.Parse(relPath, []byte(content))
	if err != nil {
		log.Warn("skipping unparsable file", "path", relPath, "error", err)
		return 0, 0
	}

	for _, el := range parsed {
		switch el.Kind {
		case parsers.ElementImport:
			if _, err := resolver.ResolveImport(relPath, el.Name); err != nil {
				log.Warn("skipping import", "path", relPath, "import", el.Name, "error", err)
				continue
			}
			imports++
		case parsers.ElementFunction, parsers.ElementClass:
			kind := graph.KindFunction
			if el.Kind == parsers.ElementClass {
				kind = graph.KindClass
			}
			_, err := g.AddCodeElement(relPath, graph.CodeElement{
				Name:      el.Name,
				Kind:      kind,
				StartLine: el.StartLine,
				EndLine:   el.EndLine,
			})
			if err != nil {
				log.Warn("skipping code element", "path", relPath, "name", el.Name, "error", err)
				continue
			}
			elements++
		}
	}
	return elements, imports
}
