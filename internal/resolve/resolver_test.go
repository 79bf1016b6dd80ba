package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutgraph/scout-go/internal/graph"
)

func newGraph(t *testing.T, files ...string) *graph.CodeGraph {
	t.Helper()
	g := graph.New()
	for _, f := range files {
		g.AddFile(f, 10)
	}
	return g
}

func TestResolveImport_SameDirectoryFlatName(t *testing.T) {
	t.Parallel()

	g := newGraph(t, "src/api.py", "src/utils.py")
	r := New(g)

	target, err := r.ResolveImport("src/api.py", "utils")

	require.NoError(t, err)
	assert.Equal(t, "src/utils.py", target)
	require.Len(t, g.Outgoing("src/api.py", graph.EdgeImports), 1)
}

func TestResolveImport_DottedPathFromRoot(t *testing.T) {
	t.Parallel()

	g := newGraph(t, "main.py", "codemap/scout/walker.py")
	r := New(g)

	target, err := r.ResolveImport("main.py", "codemap.scout.walker")

	require.NoError(t, err)
	assert.Equal(t, "codemap/scout/walker.py", target)
}

func TestResolveImport_PackageInitSameDirectory(t *testing.T) {
	t.Parallel()

	g := newGraph(t, "src/api.py", "src/helpers/__init__.py")
	r := New(g)

	target, err := r.ResolveImport("src/api.py", "helpers")

	require.NoError(t, err)
	assert.Equal(t, "src/helpers/__init__.py", target)
}

func TestResolveImport_PackageInitFromRoot(t *testing.T) {
	t.Parallel()

	g := newGraph(t, "main.py", "pkg/sub/__init__.py")
	r := New(g)

	target, err := r.ResolveImport("main.py", "pkg.sub")

	require.NoError(t, err)
	assert.Equal(t, "pkg/sub/__init__.py", target)
}

func TestResolveImport_ModuleBeatsPackageInit(t *testing.T) {
	t.Parallel()

	// Both pkg/sub.py and pkg/sub/__init__.py exist; the dotted-path
	// module wins because it is tried earlier.
	g := newGraph(t, "main.py", "pkg/sub.py", "pkg/sub/__init__.py")
	r := New(g)

	target, err := r.ResolveImport("main.py", "pkg.sub")

	require.NoError(t, err)
	assert.Equal(t, "pkg/sub.py", target)
}

func TestResolveImport_FallbackCreatesExternalModule(t *testing.T) {
	t.Parallel()

	g := newGraph(t, "main.py")
	r := New(g)

	target, err := r.ResolveImport("main.py", "os.path")

	require.NoError(t, err)
	assert.Equal(t, "external::os.path", target)

	node := g.Node("external::os.path")
	require.NotNil(t, node)
	assert.Equal(t, graph.KindExternalModule, node.Kind)
	assert.Equal(t, "os.path", node.Name)
}

func TestResolveImport_FallbackIsDeduplicated(t *testing.T) {
	t.Parallel()

	g := newGraph(t, "a.py", "b.py")
	r := New(g)

	_, err := r.ResolveImport("a.py", "requests")
	require.NoError(t, err)
	_, err = r.ResolveImport("b.py", "requests")
	require.NoError(t, err)

	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())
}

func TestResolveImport_MissingSourceFails(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	r := New(g)

	_, err := r.ResolveImport("ghost.py", "os")

	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestCandidates_Order(t *testing.T) {
	t.Parallel()

	got := Candidates("src/api.py", "pkg.sub")

	assert.Equal(t, []string{
		"src/pkg.sub.py",
		"pkg/sub.py",
		"src/pkg.sub/__init__.py",
		"pkg/sub/__init__.py",
	}, got)
}
