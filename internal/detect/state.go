// Package detect computes the set of files that changed since the last
// graph build, preferring version control and falling back to content
// hashing when VCS is unavailable.
package detect

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// BuildState is the baseline a change-detection run compares against:
// the commit the graph was last built from and the content digest of
// every tracked file. It is plain mutable state owned by the CLI layer,
// which loads it before and persists it after each cycle; the engine
// only reads and updates it through the pointer it was handed.
type BuildState struct {
	CommitHash string            `json:"commit_hash,omitempty"`
	FileHashes map[string]string `json:"file_hashes"`
}

// NewBuildState returns an empty baseline.
func NewBuildState() *BuildState {
	return &BuildState{FileHashes: make(map[string]string)}
}

// LoadBuildState reads a persisted baseline from path. A missing file
// yields an empty baseline, not an error: the first cycle after init
// has nothing to compare against.
func LoadBuildState(path string) (*BuildState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewBuildState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading build state: %w", err)
	}

	state := NewBuildState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing build state %s: %w", path, err)
	}
	if state.FileHashes == nil {
		state.FileHashes = make(map[string]string)
	}
	return state, nil
}

// Save persists the baseline to path.
func (s *BuildState) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding build state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing build state: %w", err)
	}
	return nil
}

// ChangeSet is the result of one change-detection run: paths relative
// to the project root, plus the commit hash used as the comparison
// base (empty for hash-based detection). It is ephemeral and never
// persisted.
type ChangeSet struct {
	Modified []string
	Added    []string
	Deleted  []string

	// BaseCommit is the commit the diff was computed against.
	BaseCommit string
}

// Empty reports whether the change set contains no paths.
func (c *ChangeSet) Empty() bool {
	return len(c.Modified) == 0 && len(c.Added) == 0 && len(c.Deleted) == 0
}

// Total returns the number of changed paths.
func (c *ChangeSet) Total() int {
	return len(c.Modified) + len(c.Added) + len(c.Deleted)
}

// sorted normalizes slice order for deterministic output.
func (c *ChangeSet) sorted() *ChangeSet {
	sort.Strings(c.Modified)
	sort.Strings(c.Added)
	sort.Strings(c.Deleted)
	return c
}
