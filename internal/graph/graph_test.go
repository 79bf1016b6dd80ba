package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	g := New()

	assert.NotNil(t, g)
	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
}

func TestCodeGraph_AddFile(t *testing.T) {
	t.Parallel()

	t.Run("CreatesFileNode", func(t *testing.T) {
		t.Parallel()
		g := New()

		g.AddFile("src/auth/login.py", 1024)

		node := g.Node("src/auth/login.py")
		require.NotNil(t, node)
		assert.Equal(t, KindFile, node.Kind)
		assert.Equal(t, int64(1024), node.Size)
		assert.Equal(t, int64(256), node.TokenEst)
	})

	t.Run("TokenEstimateUsesIntegerDivision", func(t *testing.T) {
		t.Parallel()
		g := New()

		g.AddFile("main.py", 1023)

		assert.Equal(t, int64(255), g.Node("main.py").TokenEst)
	})

	t.Run("RepeatCallOverwritesSize", func(t *testing.T) {
		t.Parallel()
		g := New()

		g.AddFile("main.py", 100)
		g.AddFile("main.py", 400)

		assert.Equal(t, 1, g.NodeCount())
		assert.Equal(t, int64(400), g.Node("main.py").Size)
		assert.Equal(t, int64(100), g.Node("main.py").TokenEst)
	})

	t.Run("RepeatCallKeepsExtraAttributes", func(t *testing.T) {
		t.Parallel()
		g := New()

		node := g.AddFile("main.py", 100)
		node.Extra = map[string]any{"summary": "entry point"}
		g.AddFile("main.py", 200)

		assert.Equal(t, "entry point", g.Node("main.py").Extra["summary"])
	})
}

func TestCodeGraph_AddCodeElement(t *testing.T) {
	t.Parallel()

	t.Run("CreatesNodeAndContainsEdge", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile("utils.py", 50)

		id, err := g.AddCodeElement("utils.py", CodeElement{
			Name: "helper", Kind: KindFunction, StartLine: 3, EndLine: 10,
		})

		require.NoError(t, err)
		assert.Equal(t, "utils.py::helper", id)

		node := g.Node(id)
		require.NotNil(t, node)
		assert.Equal(t, KindFunction, node.Kind)
		assert.Equal(t, "helper", node.Name)
		assert.Equal(t, 3, node.StartLine)
		assert.Equal(t, 10, node.EndLine)

		edges := g.Outgoing("utils.py", EdgeContains)
		require.Len(t, edges, 1)
		assert.Equal(t, id, edges[0].Target)
	})

	t.Run("MissingParentFails", func(t *testing.T) {
		t.Parallel()
		g := New()

		_, err := g.AddCodeElement("missing.py", CodeElement{Name: "f", Kind: KindFunction})

		assert.ErrorIs(t, err, ErrNodeNotFound)
	})

	t.Run("NonFileParentFails", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddExternalModule("os")

		_, err := g.AddCodeElement("external::os", CodeElement{Name: "f", Kind: KindFunction})

		assert.ErrorIs(t, err, ErrNotAFile)
	})

	t.Run("RepeatCallOverwritesAttributes", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile("utils.py", 50)

		_, err := g.AddCodeElement("utils.py", CodeElement{Name: "helper", Kind: KindFunction, StartLine: 3, EndLine: 10})
		require.NoError(t, err)
		_, err = g.AddCodeElement("utils.py", CodeElement{Name: "helper", Kind: KindFunction, StartLine: 5, EndLine: 22})
		require.NoError(t, err)

		node := g.Node("utils.py::helper")
		assert.Equal(t, 5, node.StartLine)
		assert.Equal(t, 22, node.EndLine)
		assert.Len(t, g.Outgoing("utils.py", EdgeContains), 1)
	})
}

func TestCodeGraph_AddDependency(t *testing.T) {
	t.Parallel()

	t.Run("MissingSourceFails", func(t *testing.T) {
		t.Parallel()
		g := New()

		err := g.AddDependency("missing.py", "utils.py")

		assert.ErrorIs(t, err, ErrNodeNotFound)
	})

	t.Run("MissingTargetBecomesLazyNode", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile("main.py", 10)

		err := g.AddDependency("main.py", "external::os")

		require.NoError(t, err)
		node := g.Node("external::os")
		require.NotNil(t, node)
		assert.Equal(t, KindLazy, node.Kind)
		assert.Empty(t, node.Name)

		edges := g.Outgoing("main.py", EdgeImports)
		require.Len(t, edges, 1)
		assert.Equal(t, "external::os", edges[0].Target)
	})

	t.Run("Idempotent", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile("main.py", 10)
		g.AddFile("utils.py", 10)

		require.NoError(t, g.AddDependency("main.py", "utils.py"))
		require.NoError(t, g.AddDependency("main.py", "utils.py"))

		assert.Equal(t, 1, g.EdgeCount())
	})

	t.Run("CyclesAllowed", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile("a.py", 10)
		g.AddFile("b.py", 10)

		require.NoError(t, g.AddDependency("a.py", "b.py"))
		require.NoError(t, g.AddDependency("b.py", "a.py"))

		assert.Equal(t, 2, g.EdgeCount())
	})
}

func TestCodeGraph_AddExternalModule(t *testing.T) {
	t.Parallel()

	t.Run("CreatesOnce", func(t *testing.T) {
		t.Parallel()
		g := New()

		id1 := g.AddExternalModule("os")
		id2 := g.AddExternalModule("os")
		id3 := g.AddExternalModule("os")

		assert.Equal(t, "external::os", id1)
		assert.Equal(t, id1, id2)
		assert.Equal(t, id1, id3)
		assert.Equal(t, 1, g.NodeCount())
	})

	t.Run("PreservesExistingAttributes", func(t *testing.T) {
		t.Parallel()
		g := New()

		g.AddExternalModule("os")
		g.Node("external::os").Extra = map[string]any{"stdlib": true}
		g.AddExternalModule("os")

		node := g.Node("external::os")
		assert.Equal(t, KindExternalModule, node.Kind)
		assert.Equal(t, "os", node.Name)
		assert.Equal(t, true, node.Extra["stdlib"])
	})

	t.Run("EnrichesLazyNode", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile("main.py", 10)
		require.NoError(t, g.AddDependency("main.py", "external::requests"))

		id := g.AddExternalModule("requests")

		node := g.Node(id)
		assert.Equal(t, KindExternalModule, node.Kind)
		assert.Equal(t, "requests", node.Name)
		assert.Equal(t, 2, g.NodeCount())
	})
}

func TestCodeGraph_RemoveFile(t *testing.T) {
	t.Parallel()

	t.Run("CascadesToSubtreeAndEdges", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile("main.py", 10)
		g.AddFile("utils.py", 20)
		_, err := g.AddCodeElement("utils.py", CodeElement{Name: "helper", Kind: KindFunction, StartLine: 1, EndLine: 4})
		require.NoError(t, err)
		require.NoError(t, g.AddDependency("main.py", "utils.py"))

		removed := g.RemoveFile("utils.py")

		assert.Equal(t, 2, removed)
		assert.False(t, g.HasNode("utils.py"))
		assert.False(t, g.HasNode("utils.py::helper"))
		assert.True(t, g.HasNode("main.py"))
		assert.Equal(t, 0, g.EdgeCount())
	})

	t.Run("AbsentFileIsNoop", func(t *testing.T) {
		t.Parallel()
		g := New()

		assert.Equal(t, 0, g.RemoveFile("nope.py"))
	})

	t.Run("ImportersSurvive", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile("a.py", 10)
		g.AddFile("b.py", 10)
		require.NoError(t, g.AddDependency("a.py", "b.py"))
		require.NoError(t, g.AddDependency("b.py", "a.py"))

		g.RemoveFile("b.py")

		assert.True(t, g.HasNode("a.py"))
		assert.Empty(t, g.Outgoing("a.py"))
		assert.Empty(t, g.Incoming("a.py"))
	})
}

func TestCodeGraph_BuildHierarchy(t *testing.T) {
	t.Parallel()

	t.Run("LinksProjectPackagesAndFiles", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile("main.py", 10)
		g.AddFile("src/auth/login.py", 10)

		g.BuildHierarchy("demo")

		require.True(t, g.HasNode("project::demo"))
		require.True(t, g.HasNode("src"))
		require.True(t, g.HasNode("src/auth"))

		assert.Equal(t, KindPackage, g.Node("src").Kind)
		assert.Equal(t, "auth", g.Node("src/auth").Name)

		projectOut := g.Outgoing("project::demo", EdgeContains)
		targets := make([]string, 0, len(projectOut))
		for _, e := range projectOut {
			targets = append(targets, e.Target)
		}
		assert.ElementsMatch(t, []string{"main.py", "src"}, targets)

		assert.Len(t, g.Incoming("src/auth/login.py", EdgeContains), 1)
		assert.Equal(t, "src/auth", g.Incoming("src/auth/login.py", EdgeContains)[0].Source)
	})

	t.Run("StampsLevels", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile("src/auth/login.py", 10)
		_, err := g.AddCodeElement("src/auth/login.py", CodeElement{Name: "login", Kind: KindFunction, StartLine: 1, EndLine: 2})
		require.NoError(t, err)

		g.BuildHierarchy("demo")

		require.NotNil(t, g.Node("project::demo").Level)
		assert.Equal(t, 0, *g.Node("project::demo").Level)
		assert.Equal(t, 3, *g.Node("src/auth/login.py").Level)
		assert.Equal(t, 4, *g.Node("src/auth/login.py::login").Level)
	})

	t.Run("PackagesAreAlwaysLevelOne", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile("a/b/c/deep.py", 10)

		g.BuildHierarchy("demo")

		// Intentional flattening: nesting depth does not raise the
		// package level.
		assert.Equal(t, 1, *g.Node("a").Level)
		assert.Equal(t, 1, *g.Node("a/b").Level)
		assert.Equal(t, 1, *g.Node("a/b/c").Level)
	})

	t.Run("Idempotent", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile("src/a.py", 10)

		g.BuildHierarchy("demo")
		nodesBefore, edgesBefore := g.NodeCount(), g.EdgeCount()
		g.BuildHierarchy("demo")

		assert.Equal(t, nodesBefore, g.NodeCount())
		assert.Equal(t, edgesBefore, g.EdgeCount())
	})
}

func TestCodeGraph_Stats(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddFile("a.py", 10)
	g.AddFile("b.py", 10)
	require.NoError(t, g.AddDependency("a.py", "b.py"))

	s := g.Stats()

	assert.Equal(t, 2, s.Nodes)
	assert.Equal(t, 1, s.Edges)
}
