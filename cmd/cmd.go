// Package cmd provides CLI command implementations for Scout.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/scoutgraph/scout-go/internal/detect"
	"github.com/scoutgraph/scout-go/internal/graph"
	"github.com/scoutgraph/scout-go/internal/ingestion"
	"github.com/scoutgraph/scout-go/internal/lock"
	"github.com/scoutgraph/scout-go/internal/parsers"
	"github.com/scoutgraph/scout-go/internal/storage"
	"github.com/scoutgraph/scout-go/internal/update"
	"github.com/scoutgraph/scout-go/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// scoutDir holds everything Scout writes inside a repository.
const scoutDir = ".scout"

// dataPaths resolves the on-disk layout under <repo>/.scout.
type dataPaths struct {
	dir      string
	graph    string
	state    string
	metadata string
	badger   string
	lock     string
}

func pathsFor(repoPath string) dataPaths {
	dir := filepath.Join(repoPath, scoutDir)
	return dataPaths{
		dir:      dir,
		graph:    filepath.Join(dir, "graph.json"),
		state:    filepath.Join(dir, "state.json"),
		metadata: filepath.Join(dir, "metadata.json"),
		badger:   filepath.Join(dir, "badger"),
		lock:     filepath.Join(dir, "scout.lock"),
	}
}

// BuildCmd scans a repository and builds its code graph from scratch.
type BuildCmd struct {
	Path    string `arg:"" optional:"" default:"." help:"Path to repository"`
	Project string `help:"Project name (defaults to the directory name)" env:"SCOUT_PROJECT"`
}

// Run executes the build command.
func (c *BuildCmd) Run() error {
	ctx := context.Background()
	repoPath, err := filepath.Abs(c.Path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(repoPath)
	if err != nil {
		return fmt.Errorf("accessing %s: %w", repoPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", repoPath)
	}

	projectName := c.Project
	if projectName == "" {
		projectName = filepath.Base(repoPath)
	}

	color.Green("Building code graph for %s", repoPath)

	paths := pathsFor(repoPath)
	if err := os.MkdirAll(paths.dir, 0o755); err != nil {
		return fmt.Errorf("creating %s directory: %w", scoutDir, err)
	}

	fl := lock.New(paths.lock)
	if err := fl.TryLock(); err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return fmt.Errorf("another scout process is updating this repository")
		}
		return fmt.Errorf("acquiring lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	progress := func(phase string, pct float64) {
		fmt.Printf("\r\033[K%s (%.0f%%)", phase, pct*100)
	}

	state := detect.NewBuildState()
	g, result, err := ingestion.Build(ctx, repoPath, projectName, state, progress)
	if err != nil {
		return fmt.Errorf("building graph: %w", err)
	}

	fmt.Println() // Newline after progress

	if err := persistAll(ctx, paths, g, state); err != nil {
		return err
	}
	if err := writeMetadata(paths.metadata, state.CommitHash); err != nil {
		return err
	}

	color.Green("\n✓ Build complete")
	fmt.Printf("  Files:     %d\n", result.Files)
	fmt.Printf("  Elements:  %d\n", result.Elements)
	fmt.Printf("  Imports:   %d\n", result.Imports)
	fmt.Printf("  Duration:  %.2fs\n", result.DurationSecs)

	return nil
}

// UpdateCmd applies detected file changes to an existing graph.
type UpdateCmd struct {
	Path string `arg:"" optional:"" default:"." help:"Path to repository"`
}

// Run executes the update command.
func (c *UpdateCmd) Run() error {
	ctx := context.Background()
	repoPath, err := filepath.Abs(c.Path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	paths := pathsFor(repoPath)
	if _, err := os.Stat(paths.graph); os.IsNotExist(err) {
		return fmt.Errorf("no graph found at %s. Run 'scout build' first", repoPath)
	}

	fl := lock.New(paths.lock)
	if err := fl.TryLock(); err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return fmt.Errorf("another scout process is updating this repository")
		}
		return fmt.Errorf("acquiring lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	cs, err := runUpdateCycle(ctx, repoPath, paths)
	if err != nil {
		return err
	}

	if cs.Empty() {
		fmt.Println("No changes detected")
		return nil
	}

	color.Green("✓ Update complete")
	fmt.Printf("  Modified:  %d\n", len(cs.Modified))
	fmt.Printf("  Added:     %d\n", len(cs.Added))
	fmt.Printf("  Deleted:   %d\n", len(cs.Deleted))

	return nil
}

// runUpdateCycle loads graph and state, runs one incremental update,
// and persists everything back. Callers hold the repository lock.
func runUpdateCycle(ctx context.Context, repoPath string, paths dataPaths) (*detect.ChangeSet, error) {
	g := graph.New()
	if err := g.Load(paths.graph); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no graph found at %s. Run 'scout build' first", repoPath)
		}
		return nil, fmt.Errorf("loading graph: %w", err)
	}

	state, err := detect.LoadBuildState(paths.state)
	if err != nil {
		return nil, fmt.Errorf("loading build state: %w", err)
	}

	registry := parsers.NewRegistry()
	registry.Register(parsers.NewCachedParser(parsers.NewPythonParser()))

	updater := update.New(g, repoPath, state, update.WithRegistry(registry))
	cs, err := updater.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("updating graph: %w", err)
	}

	if err := persistAll(ctx, paths, g, state); err != nil {
		return nil, err
	}
	if err := writeMetadata(paths.metadata, state.CommitHash); err != nil {
		return nil, err
	}

	return cs, nil
}

// persistAll writes graph.json and state.json, then refreshes the
// badger query index from the graph.
func persistAll(ctx context.Context, paths dataPaths, g *graph.CodeGraph, state *detect.BuildState) error {
	if err := g.Save(paths.graph); err != nil {
		return fmt.Errorf("saving graph: %w", err)
	}
	if err := state.Save(paths.state); err != nil {
		return fmt.Errorf("saving build state: %w", err)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(paths.badger, false); err != nil {
		return fmt.Errorf("initializing query index: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.BulkLoad(ctx, g); err != nil {
		return fmt.Errorf("loading query index: %w", err)
	}
	return nil
}

func writeMetadata(path, commitHash string) error {
	meta := map[string]any{
		"version":    Version,
		"build_time": time.Now().UTC().Format(time.RFC3339),
	}
	if commitHash != "" {
		meta["commit_hash"] = commitHash
	} else {
		meta["commit_hash"] = nil
	}

	metaJSON, _ := json.MarshalIndent(meta, "", "  ")
	if err := os.WriteFile(path, metaJSON, 0o644); err != nil {
		return fmt.Errorf("writing metadata.json: %w", err)
	}
	return nil
}

// StatusCmd shows graph status for the current repository.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run() error {
	repoPath, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	paths := pathsFor(repoPath)
	metaBytes, err := os.ReadFile(paths.metadata)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no graph found at %s. Run 'scout build' first", repoPath)
		}
		return fmt.Errorf("reading metadata.json: %w", err)
	}

	var meta map[string]any
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("parsing metadata.json: %w", err)
	}

	fmt.Printf("Graph status for %s\n", repoPath)
	if version, ok := meta["version"].(string); ok {
		fmt.Printf("  Version:     %s\n", version)
	}
	if buildTime, ok := meta["build_time"].(string); ok {
		fmt.Printf("  Last build:  %s\n", buildTime)
	}
	if commit, ok := meta["commit_hash"].(string); ok && commit != "" {
		fmt.Printf("  Commit:      %s\n", commit)
	} else {
		fmt.Printf("  Commit:      (not a git repository)\n")
	}

	state, err := detect.LoadBuildState(paths.state)
	if err == nil {
		fmt.Printf("  Tracked:     %d files\n", len(state.FileHashes))
	}

	return nil
}

// StatsCmd prints node and edge counts from the query index.
type StatsCmd struct{}

// Run executes the stats command.
func (c *StatsCmd) Run() error {
	store, err := loadStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	fmt.Println("Code graph stats")
	fmt.Printf("  Nodes:  %d\n", store.NodeCount())
	fmt.Printf("  Edges:  %d\n", store.EdgeCount())

	return nil
}

// AffectedCmd shows every node transitively importing a given node.
type AffectedCmd struct {
	ID    string `arg:"" help:"Node ID to analyze (e.g. a relative file path)"`
	Depth int    `short:"d" default:"5" help:"Traversal depth"`
}

// Run executes the affected command.
func (c *AffectedCmd) Run() error {
	ctx := context.Background()
	store, err := loadStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	start, err := store.GetNode(ctx, c.ID)
	if err != nil {
		return err
	}
	if start == nil {
		fmt.Printf("Node '%s' not found in the graph.\n", c.ID)
		return nil
	}

	fmt.Printf("## Impact analysis for %s (depth: %d)\n\n", c.ID, c.Depth)

	visited := map[string]bool{c.ID: true}
	frontier := []string{c.ID}
	total := 0

	for depth := 1; depth <= c.Depth && len(frontier) > 0; depth++ {
		var next []string
		var level []*graph.Node
		for _, cur := range frontier {
			dependents, err := store.Dependents(ctx, cur)
			if err != nil {
				return err
			}
			for _, dep := range dependents {
				if visited[dep.ID] {
					continue
				}
				visited[dep.ID] = true
				level = append(level, dep)
				next = append(next, dep.ID)
			}
		}
		if len(level) > 0 {
			fmt.Printf("### Depth %d - %d node(s)\n", depth, len(level))
			for _, n := range level {
				fmt.Printf("- %s\n", n.ID)
			}
			fmt.Println()
			total += len(level)
		}
		frontier = next
	}

	if total == 0 {
		fmt.Println("No importers found. This node appears to be an entry point or unused.")
	}

	return nil
}

// WatchCmd enables watch mode with live incremental updates.
type WatchCmd struct{}

// Run executes the watch command.
func (c *WatchCmd) Run() error {
	repoPath, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	paths := pathsFor(repoPath)
	if _, err := os.Stat(paths.graph); os.IsNotExist(err) {
		return fmt.Errorf("no graph found at %s. Run 'scout build' first", repoPath)
	}

	fmt.Println("## Watch Mode")
	fmt.Printf("Watching %s for changes (Ctrl+C to stop)\n\n", repoPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle Ctrl+C
	go func() {
		<-osSignalChannel()
		fmt.Println("\nStopping watch mode...")
		cancel()
	}()

	onBatch := func(ctx context.Context) error {
		fl := lock.New(paths.lock)
		if err := fl.TryLock(); err != nil {
			if errors.Is(err, lock.ErrLocked) {
				fmt.Println("Skipping update: repository is locked")
				return nil
			}
			return err
		}
		defer func() { _ = fl.Unlock() }()

		cs, err := runUpdateCycle(ctx, repoPath, paths)
		if err != nil {
			return err
		}
		if !cs.Empty() {
			fmt.Printf("Updated: %d modified, %d added, %d deleted\n",
				len(cs.Modified), len(cs.Added), len(cs.Deleted))
		}
		return nil
	}

	err = ingestion.Watch(ctx, repoPath, onBatch)
	if err != nil && err != context.Canceled {
		return fmt.Errorf("watch error: %w", err)
	}

	fmt.Println("Watch mode stopped.")
	return nil
}

// MCPCmd starts the MCP server.
type MCPCmd struct{}

// Run executes the mcp command.
func (c *MCPCmd) Run() error {
	ctx := context.Background()
	store, err := loadStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	server := mcp.NewServer(store)

	// Note: No output to stderr - MCP server uses stdio for JSON-RPC only
	return server.Run(ctx, os.Stdin, os.Stdout)
}

// CleanCmd deletes the graph data for the current repository.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run() error {
	repoPath, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	paths := pathsFor(repoPath)
	if _, err := os.Stat(paths.dir); os.IsNotExist(err) {
		return fmt.Errorf("no graph found at %s. Nothing to clean", repoPath)
	}

	if !c.Force {
		fmt.Printf("Delete graph data at %s? [y/N] ", paths.dir)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := os.RemoveAll(paths.dir); err != nil {
		return fmt.Errorf("deleting graph data: %w", err)
	}

	color.Green("Deleted %s", paths.dir)
	return nil
}

// Helper functions

// osSignalChannel returns a channel that receives OS signals for graceful shutdown.
func osSignalChannel() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

func loadStorage() (*storage.BadgerBackend, error) {
	repoPath, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	paths := pathsFor(repoPath)
	if _, err := os.Stat(paths.badger); os.IsNotExist(err) {
		return nil, fmt.Errorf("no graph found at %s. Run 'scout build' first", repoPath)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(paths.badger, true); err != nil {
		return nil, fmt.Errorf("initializing query index: %w", err)
	}

	return store, nil
}

// CLI is the root Kong command structure.
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`
	Verbose bool             `short:"v" help:"Enable verbose output"`
	Quiet   bool             `short:"q" help:"Suppress non-essential output"`

	// Commands
	Build    BuildCmd    `cmd:"" help:"Build the code graph from a full repository scan"`
	Update   UpdateCmd   `cmd:"" help:"Apply detected file changes to the graph"`
	Status   StatusCmd   `cmd:"" help:"Show graph status for the current repo"`
	Stats    StatsCmd    `cmd:"" help:"Show node and edge counts"`
	Affected AffectedCmd `cmd:"" help:"Show blast radius of changing a node"`
	Watch    WatchCmd    `cmd:"" help:"Watch mode with live incremental updates"`
	MCP      MCPCmd      `cmd:"" help:"Start MCP server (stdio transport)"`
	Clean    CleanCmd    `cmd:"" help:"Delete graph data for the current repository"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	kongCtx, err := kong.New(c,
		kong.Name("scout"),
		kong.Description("Incremental code graph engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)
	if err != nil {
		return err
	}

	parsed, err := kongCtx.Parse(args)
	if err != nil {
		return err
	}

	return parsed.Run()
}
