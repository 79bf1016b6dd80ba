package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func relPaths(entries []FileEntry) []string {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.RelPath)
	}
	return paths
}

func TestWalk_FiltersByExtension(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "main.py", "x = 1")
	writeFile(t, root, "src/utils.py", "y = 2")
	writeFile(t, root, "README.md", "docs")

	entries, err := Walk(root, []string{".py"})

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.py", "src/utils.py"}, relPaths(entries))
}

func TestWalk_ComputesSizeAndTokenEstimate(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "main.py", "0123456789")

	entries, err := Walk(root, []string{".py"})

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].Size)
	assert.Equal(t, int64(2), entries[0].TokenEst)
}

func TestWalk_DefaultIgnores(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "keep.py", "x")
	writeFile(t, root, ".scout/cache.py", "x")
	writeFile(t, root, "__pycache__/keep.cpython-312.py", "x")
	writeFile(t, root, "venv/lib/thing.py", "x")

	entries, err := Walk(root, []string{".py"})

	require.NoError(t, err)
	assert.Equal(t, []string{"keep.py"}, relPaths(entries))
}

func TestWalk_RespectsGitignore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\nscratch.py\n")
	writeFile(t, root, "kept.py", "x")
	writeFile(t, root, "scratch.py", "x")
	writeFile(t, root, "generated/out.py", "x")

	entries, err := Walk(root, []string{".py"})

	require.NoError(t, err)
	assert.Equal(t, []string{"kept.py"}, relPaths(entries))
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	t.Run("Text", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeFile(t, root, "ok.py", "print('hi')")

		content, err := ReadFile(filepath.Join(root, "ok.py"))

		require.NoError(t, err)
		assert.Equal(t, "print('hi')", content)
	})

	t.Run("BinaryFails", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		p := filepath.Join(root, "blob.py")
		require.NoError(t, os.WriteFile(p, []byte{0x00, 0xff, 0x00}, 0o644))

		_, err := ReadFile(p)

		assert.Error(t, err)
	})

	t.Run("MissingFails", func(t *testing.T) {
		t.Parallel()

		_, err := ReadFile(filepath.Join(t.TempDir(), "absent.py"))

		assert.Error(t, err)
	})
}
