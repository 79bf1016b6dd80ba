package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutgraph/scout-go/internal/graph"
)

func testGraph(t *testing.T) *graph.CodeGraph {
	t.Helper()
	g := graph.New()
	g.AddFile("main.py", 100)
	g.AddFile("utils.py", 60)
	_, err := g.AddCodeElement("utils.py", graph.CodeElement{Name: "helper", Kind: graph.KindFunction, StartLine: 1, EndLine: 3})
	require.NoError(t, err)
	require.NoError(t, g.AddDependency("main.py", "utils.py"))
	g.AddExternalModule("os")
	require.NoError(t, g.AddDependency("main.py", "external::os"))
	return g
}

// backendContract exercises the Backend interface against any
// implementation.
func backendContract(t *testing.T, b Backend) {
	t.Helper()
	ctx := t.Context()

	g := testGraph(t)
	require.NoError(t, b.BulkLoad(ctx, g))

	assert.Equal(t, g.NodeCount(), b.NodeCount())
	assert.Equal(t, g.EdgeCount(), b.EdgeCount())

	node, err := b.GetNode(ctx, "main.py")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, graph.KindFile, node.Kind)
	assert.Equal(t, int64(100), node.Size)

	missing, err := b.GetNode(ctx, "nope.py")
	require.NoError(t, err)
	assert.Nil(t, missing)

	deps, err := b.Dependencies(ctx, "main.py")
	require.NoError(t, err)
	depIDs := nodeIDs(deps)
	assert.ElementsMatch(t, []string{"utils.py", "external::os"}, depIDs)

	dependents, err := b.Dependents(ctx, "utils.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py"}, nodeIDs(dependents))

	children, err := b.Children(ctx, "utils.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"utils.py::helper"}, nodeIDs(children))
}

func nodeIDs(nodes []*graph.Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestMemoryBackend_Contract(t *testing.T) {
	t.Parallel()

	b := NewMemoryBackend()
	require.NoError(t, b.Initialize("", false))
	defer func() { _ = b.Close() }()

	backendContract(t, b)
}

func TestBadgerBackend_Contract(t *testing.T) {
	t.Parallel()

	b := NewBadgerBackend()
	require.NoError(t, b.Initialize(t.TempDir(), false))
	defer func() { _ = b.Close() }()

	backendContract(t, b)
}

func TestBadgerBackend_CountsSurviveReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	b := NewBadgerBackend()
	require.NoError(t, b.Initialize(dir, false))
	require.NoError(t, b.BulkLoad(t.Context(), testGraph(t)))
	nodes, edges := b.NodeCount(), b.EdgeCount()
	require.NoError(t, b.Close())

	reopened := NewBadgerBackend()
	require.NoError(t, reopened.Initialize(dir, false))
	defer func() { _ = reopened.Close() }()

	assert.Equal(t, nodes, reopened.NodeCount())
	assert.Equal(t, edges, reopened.EdgeCount())
}

func TestMemoryBackend_ReadOnlyRejectsBulkLoad(t *testing.T) {
	t.Parallel()

	b := NewMemoryBackend()
	require.NoError(t, b.Initialize("", true))

	assert.Error(t, b.BulkLoad(t.Context(), graph.New()))
}
