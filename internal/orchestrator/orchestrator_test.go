package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/standardbeagle/deptrack/internal/config"
	"github.com/standardbeagle/deptrack/internal/embeddings"
	"github.com/standardbeagle/deptrack/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func writeProject(t *testing.T, root string) {
	t.Helper()
	mustWrite := func(rel, content string) {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	mustWrite("src/pkga/a.py", "import os\n\ndef run():\n    return 1\n")
	mustWrite("src/pkgb/b.py", "from pkga import a\n\ndef use():\n    return a.run()\n")
	mustWrite("docs/readme.md", "# Docs\n\n[see a](../src/pkga/a.py)\n")
}

func testConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.ProjectRoot = root
	return cfg
}

func TestOrchestrator_Run_ProducesTrackersAndReport(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))

	root := t.TempDir()
	writeProject(t, root)
	cfg := testConfig(root)

	o := New(root, cfg, embeddings.NewHashEncoder(32))
	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Greater(t, report.FilesScanned, 0)
	assert.NotEmpty(t, report.TrackersWritten)

	mainPath := filepath.Join(root, cfg.Paths.MainTrackerFilename)
	assert.Contains(t, report.TrackersWritten, mainPath)

	data, err := tracker.Read(mainPath)
	require.NoError(t, err)
	assert.NotEmpty(t, data.Keys)
}

func TestOrchestrator_Run_CreatesMiniTrackerPerCodeModule(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root)
	cfg := testConfig(root)

	o := New(root, cfg, embeddings.NewHashEncoder(32))
	report, err := o.Run(context.Background())
	require.NoError(t, err)

	foundMini := false
	for _, p := range report.TrackersWritten {
		if filepath.Base(filepath.Dir(p)) == "pkga" {
			foundMini = true
		}
	}
	assert.True(t, foundMini)
}

func TestOrchestrator_Run_IsIdempotentOnRerun(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root)
	cfg := testConfig(root)

	o := New(root, cfg, embeddings.NewHashEncoder(32))
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	report2, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report2.NewKeys)
}

func TestModuleKeyFor(t *testing.T) {
	assert.Equal(t, "1A", moduleKeyFor("1A1"))
	assert.Equal(t, "2Ab", moduleKeyFor("2Ab3"))
	assert.Equal(t, "1A", moduleKeyFor("1A"))
}

func TestBatchSize(t *testing.T) {
	assert.Equal(t, 20, batchSize(80))
	assert.Equal(t, 1, batchSize(1))
	assert.Equal(t, 50, batchSize(1000))
}

func TestRollUp_ParentInheritsChildCrossModuleEdge(t *testing.T) {
	edges := map[string]map[string]byte{
		"2Aa": {"2Ba": '>'},
	}
	moduleKeys := map[string]bool{"1A": true, "2Aa": true, "1B": true, "2Ba": true}
	priorityOf := func(ch byte) int {
		p := map[byte]int{'.': 0, 'p': 1, 's': 2, 'S': 2, 'd': 3, '<': 3, '>': 3, 'x': 3}
		return p[ch]
	}

	rollUp(edges, moduleKeys, priorityOf)

	assert.Equal(t, byte('>'), edges["1A"]["2Ba"])
}

func TestRollUp_DoesNotCountSelfOrDescendantAsCrossModule(t *testing.T) {
	edges := map[string]map[string]byte{
		"2Aa": {"1A": '>'}, // edge back to its own parent, must not roll up
	}
	moduleKeys := map[string]bool{"1A": true, "2Aa": true}
	priorityOf := func(ch byte) int { return 3 }

	rollUp(edges, moduleKeys, priorityOf)

	assert.Empty(t, edges["1A"])
}

func TestRollUp_DoesNotRollUpEdgeIntoTargetsOwnSubtree(t *testing.T) {
	// 3Aab is a grandchild of 1A (via parent 2Aa). Its edge targets 2Ab,
	// which is itself a direct child of 1A -- rolling 3Aab's edge up to
	// "1A -> 2Ab" would be wrong since 2Ab is already inside 1A's own
	// subtree, not a genuine cross-module dependency for 1A.
	edges := map[string]map[string]byte{
		"3Aab": {"2Ab": '>'},
	}
	moduleKeys := map[string]bool{"1A": true, "2Aa": true, "2Ab": true, "3Aab": true}
	priorityOf := func(ch byte) int { return 3 }

	rollUp(edges, moduleKeys, priorityOf)

	assert.Empty(t, edges["1A"])
	assert.Equal(t, map[string]byte{"2Ab": '>'}, edges["2Aa"])
}
