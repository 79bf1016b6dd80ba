// Package ingestion discovers and reads source files and drives the
// full-scan graph build.
package ingestion

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/scoutgraph/scout-go/internal/graph"
)

// FileEntry describes one discovered source file.
type FileEntry struct {
	// Path is the absolute file path.
	Path string

	// RelPath is the slash-separated path relative to the project root.
	RelPath string

	// Size is the file size in bytes.
	Size int64

	// TokenEst is the estimated token count (Size/4).
	TokenEst int64
}

// Default patterns ignored in addition to .gitignore.
var defaultIgnorePatterns = []string{
	".git/",
	".scout/",
	"node_modules/",
	"__pycache__/",
	".venv/",
	"venv/",
	".tox/",
	".eggs/",
	"*.egg-info/",
	".pytest_cache/",
	".mypy_cache/",
	".DS_Store",
}

// Walk returns every file under root whose extension is in exts,
// filtered through the project's .gitignore plus the default ignore
// patterns. Extensions carry their leading dot.
func Walk(root string, exts []string) ([]FileEntry, error) {
	patterns, _ := loadGitignore(root)

	allPatterns := make([]gitignore.Pattern, 0, len(defaultIgnorePatterns)+len(patterns))
	for _, p := range defaultIgnorePatterns {
		allPatterns = append(allPatterns, gitignore.ParsePattern(p, nil))
	}
	allPatterns = append(allPatterns, patterns...)
	matcher := gitignore.NewMatcher(allPatterns)

	wanted := make(map[string]bool, len(exts))
	for _, ext := range exts {
		wanted[strings.ToLower(ext)] = true
	}

	var entries []FileEntry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}

		if d.IsDir() {
			if p == root {
				return nil
			}
			if d.Name() == ".git" || matcher.Match(splitPath(rel), true) {
				return filepath.SkipDir
			}
			return nil
		}

		if !wanted[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		if matcher.Match(splitPath(rel), false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		entries = append(entries, FileEntry{
			Path:     p,
			RelPath:  filepath.ToSlash(rel),
			Size:     info.Size(),
			TokenEst: graph.TokenEstimate(info.Size()),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// loadGitignore loads .gitignore patterns from the project root.
func loadGitignore(root string) ([]gitignore.Pattern, error) {
	content, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns, nil
}

func splitPath(rel string) []string {
	return strings.Split(filepath.ToSlash(rel), "/")
}
