// Package update orchestrates one incremental graph-update cycle.
//
// A cycle asks the change detector what moved, tears down graph state
// for deleted and modified files, then rebuilds the changed files in
// two passes: all file nodes first, then all parsing and import
// resolution. Because every file node from this cycle exists before any
// import of this cycle is resolved, two files added together that
// import each other land on real internal edges instead of spurious
// external modules.
package update

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/scoutgraph/scout-go/internal/detect"
	"github.com/scoutgraph/scout-go/internal/graph"
	"github.com/scoutgraph/scout-go/internal/ingestion"
	"github.com/scoutgraph/scout-go/internal/parsers"
	"github.com/scoutgraph/scout-go/internal/resolve"
)

// Updater applies incremental changes to one graph.
type Updater struct {
	g        *graph.CodeGraph
	detector *detect.Detector
	state    *detect.BuildState
	registry *parsers.Registry
	root     string
	log      *slog.Logger
}

// Option configures an Updater.
type Option func(*Updater)

// WithRegistry overrides the parser registry (watch mode injects
// cached parsers here).
func WithRegistry(r *parsers.Registry) Option {
	return func(u *Updater) { u.registry = r }
}

// WithLogger overrides the updater's logger.
func WithLogger(log *slog.Logger) Option {
	return func(u *Updater) { u.log = log }
}

// New creates an updater for a graph rooted at the given project
// directory. The build state is shared with the detector and the
// owning CLI layer, which persists it after the cycle.
func New(g *graph.CodeGraph, root string, state *detect.BuildState, opts ...Option) *Updater {
	u := &Updater{
		g:        g,
		detector: detect.NewDetector(root, state),
		state:    state,
		registry: parsers.NewRegistry(),
		root:     root,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Run executes one update cycle and returns the change set that was
// applied, possibly empty. Per-file read and parse failures are logged
// and skipped; only change detection itself can fail the cycle.
func (u *Updater) Run(ctx context.Context) (*detect.ChangeSet, error) {
	cs, err := u.detector.DetectChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("detecting changes: %w", err)
	}

	if !cs.Empty() {
		for _, p := range cs.Deleted {
			if u.g.HasNode(p) {
				u.g.RemoveFile(p)
			}
		}
		// Modified files are torn down and recreated below.
		for _, p := range cs.Modified {
			if u.g.HasNode(p) {
				u.g.RemoveFile(p)
			}
		}

		recreate := make([]string, 0, len(cs.Modified)+len(cs.Added))
		recreate = append(recreate, cs.Modified...)
		recreate = append(recreate, cs.Added...)

		// Pass 1: bare file nodes for everything in this batch.
		survivors := make([]string, 0, len(recreate))
		for _, relPath := range recreate {
			info, err := os.Stat(filepath.Join(u.root, filepath.FromSlash(relPath)))
			if err != nil {
				// Deleted between detection and now; nothing to build.
				continue
			}
			u.g.AddFile(relPath, info.Size())
			survivors = append(survivors, relPath)
		}

		// Pass 2: parse and resolve, now that every sibling exists.
		resolver := resolve.New(u.g)
		for _, relPath := range survivors {
			abs := filepath.Join(u.root, filepath.FromSlash(relPath))
			ingestion.ApplyFile(u.g, resolver, u.registry, abs, relPath, u.log)
		}
	}

	if err := u.refreshState(); err != nil {
		return nil, err
	}
	return cs, nil
}

// refreshState records the new comparison baseline: the current commit
// when VCS is available, and a fresh digest for every tracked file.
func (u *Updater) refreshState() error {
	if hash, ok := detect.CurrentCommit(u.root); ok {
		u.state.CommitHash = hash
	}

	hashes, err := detect.SnapshotHashes(u.root, detect.DefaultGlob)
	if err != nil {
		return fmt.Errorf("refreshing file hashes: %w", err)
	}
	u.state.FileHashes = hashes
	return nil
}

// AffectedParentNodes returns every ancestor directory of every path
// in the change set, excluding the root sentinel ".". External
// re-aggregation passes use this to decide which package summaries are
// stale.
func AffectedParentNodes(cs *detect.ChangeSet) []string {
	seen := make(map[string]bool)
	collect := func(paths []string) {
		for _, p := range paths {
			for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
				seen[dir] = true
			}
		}
	}
	collect(cs.Modified)
	collect(cs.Added)
	collect(cs.Deleted)

	parents := make([]string, 0, len(seen))
	for dir := range seen {
		parents = append(parents, dir)
	}
	sort.Strings(parents)
	return parents
}
