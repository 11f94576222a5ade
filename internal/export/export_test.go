package export

import (
	"testing"

	"github.com/standardbeagle/deptrack/internal/grid"
	"github.com/standardbeagle/deptrack/internal/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleKeysAndGrid(t *testing.T) (keys.KeyMap, grid.Grid) {
	t.Helper()
	km := keys.KeyMap{"1A1": "/proj/src/a.py", "1A2": "/proj/src/b.py"}
	sorted := keys.Sort([]string{"1A1", "1A2"})
	g := grid.NewInitial(sorted)
	g, err := grid.AddDependency(g, "1A1", "1A2", sorted, '>')
	require.NoError(t, err)
	return km, g
}

func TestMermaid_RendersNodesAndArrow(t *testing.T) {
	km, g := sampleKeysAndGrid(t)
	out, err := Mermaid(km, g)
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR")
	assert.Contains(t, out, "1A1")
	assert.Contains(t, out, "-->")
}

func TestMermaid_ReciprocalCharUsesBidirectionalArrow(t *testing.T) {
	km := keys.KeyMap{"1A1": "/proj/src/a.py", "1A2": "/proj/src/b.py"}
	sorted := keys.Sort([]string{"1A1", "1A2"})
	g := grid.NewInitial(sorted)
	g, err := grid.AddDependency(g, "1A1", "1A2", sorted, 'x')
	require.NoError(t, err)

	out, err := Mermaid(km, g)
	require.NoError(t, err)
	assert.Contains(t, out, "<-->")
}

func TestSummary_CountsOutgoingEdges(t *testing.T) {
	km, g := sampleKeysAndGrid(t)
	out, err := Summary(km, g)
	require.NoError(t, err)
	assert.Contains(t, out, "Keys: 2")
	assert.Contains(t, out, "Edges: 1")
	assert.Contains(t, out, "1A1")
}

func TestSummary_InvalidGridReturnsError(t *testing.T) {
	km := keys.KeyMap{"1A1": "/proj/src/a.py"}
	bad := grid.Grid{"1A1": "pp"} // wrong length for a single-key grid
	_, err := Summary(km, bad)
	assert.Error(t, err)
}
