package detect

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// DefaultGlob matches the source files tracked by hash-based
// detection. It is applied to the file's base name.
const DefaultGlob = "*.py"

// Detector produces change sets for one project root against a
// BuildState baseline.
type Detector struct {
	root  string
	state *BuildState
	glob  string
	log   *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithGlob overrides the base-name glob used by hash-based detection.
func WithGlob(glob string) Option {
	return func(d *Detector) { d.glob = glob }
}

// WithLogger overrides the detector's logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Detector) { d.log = log }
}

// NewDetector creates a detector for the given project root. The
// baseline state is shared with the caller and mutated only by the
// updater, never by detection itself.
func NewDetector(root string, state *BuildState, opts ...Option) *Detector {
	d := &Detector{
		root:  root,
		state: state,
		glob:  DefaultGlob,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectChanges computes the change set since the baseline. With a
// recorded commit hash it diffs that commit against the current head;
// if the VCS invocation fails for any reason (no git binary, not a
// repository, unknown commit) it falls back to hash-based detection
// instead of surfacing the failure.
func (d *Detector) DetectChanges(ctx context.Context) (*ChangeSet, error) {
	if d.state.CommitHash != "" {
		cs, err := d.gitDiff(ctx, d.state.CommitHash)
		if err == nil {
			return cs, nil
		}
		d.log.Warn("git diff unavailable, falling back to hash comparison",
			"root", d.root, "base", d.state.CommitHash, "error", err)
	}
	return d.hashChanges()
}

// gitDiff shells out to git and parses name-status output between the
// base commit and HEAD.
func (d *Detector) gitDiff(ctx context.Context, base string) (*ChangeSet, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-status", base, "HEAD")
	cmd.Dir = d.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("git diff: %s", strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("git diff: %w", err)
	}

	cs := d.parseNameStatus(stdout.String())
	cs.BaseCommit = base
	return cs.sorted(), nil
}

// parseNameStatus parses `git diff --name-status` output. Renames are
// split into a deletion of the old path and an addition of the new
// one. Unknown status codes and short lines are logged and skipped so
// one odd line never aborts the scan.
func (d *Detector) parseNameStatus(out string) *ChangeSet {
	cs := &ChangeSet{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			d.log.Warn("skipping malformed diff line", "line", line)
			continue
		}

		status, p := fields[0], filepath.ToSlash(fields[1])
		switch {
		case status == "M":
			cs.Modified = append(cs.Modified, p)
		case status == "A":
			cs.Added = append(cs.Added, p)
		case status == "D":
			cs.Deleted = append(cs.Deleted, p)
		case strings.HasPrefix(status, "R"):
			if len(fields) < 3 {
				d.log.Warn("skipping rename without new path", "line", line)
				continue
			}
			cs.Deleted = append(cs.Deleted, p)
			cs.Added = append(cs.Added, filepath.ToSlash(fields[2]))
		default:
			d.log.Warn("skipping unhandled diff status", "status", status, "path", p)
		}
	}
	return cs
}

// hashChanges walks the tree, digests every matching file and compares
// against the stored hash map. Files on disk but not in the map are
// added; differing digests are modified; map entries without a file on
// disk are deleted.
func (d *Detector) hashChanges() (*ChangeSet, error) {
	current, err := SnapshotHashes(d.root, d.glob)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", d.root, err)
	}

	cs := &ChangeSet{}
	for p, digest := range current {
		prev, ok := d.state.FileHashes[p]
		switch {
		case !ok:
			cs.Added = append(cs.Added, p)
		case prev != digest:
			cs.Modified = append(cs.Modified, p)
		}
	}
	for p := range d.state.FileHashes {
		if _, ok := current[p]; !ok {
			cs.Deleted = append(cs.Deleted, p)
		}
	}
	return cs.sorted(), nil
}

// CurrentCommit returns the head commit of the repository containing
// root, or ok=false when version control is unavailable. It never
// returns an error.
func CurrentCommit(root string) (string, bool) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", false
	}
	head, err := repo.Head()
	if err != nil {
		return "", false
	}
	return head.Hash().String(), true
}

// SnapshotHashes digests every file under root whose base name matches
// glob, keyed by slash-separated relative path. Dot-directories
// (.git, .scout and friends) are skipped.
func SnapshotHashes(root, glob string) (map[string]string, error) {
	hashes := make(map[string]string)
	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if p != root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := path.Match(glob, entry.Name()); !ok {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		digest, err := HashFile(p)
		if err != nil {
			return err
		}
		hashes[filepath.ToSlash(rel)] = digest
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// HashFile returns the hex SHA-256 digest of the file's content.
func HashFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}
