package main

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBinaryPath string

// TestMain builds the deptrack binary once and shares it across every test
// in this package, the same build-once-exec-many pattern the CLI's teacher
// used for its own end-to-end command tests.
func TestMain(m *testing.M) {
	tempBinary := filepath.Join(os.TempDir(), "deptrack-test-"+fmt.Sprintf("%d", time.Now().UnixNano()))

	buildCmd := exec.Command("go", "build", "-o", tempBinary, ".")
	var buildOut bytes.Buffer
	buildCmd.Stdout = &buildOut
	buildCmd.Stderr = &buildOut
	if err := buildCmd.Run(); err != nil {
		fmt.Printf("failed to build deptrack for testing: %v\nbuild output: %s\n", err, buildOut.String())
		os.Exit(1)
	}
	testBinaryPath = tempBinary

	code := m.Run()
	os.Remove(testBinaryPath)
	os.Exit(code)
}

func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(testBinaryPath, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func setupTestProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"src/a.py": `import src.b

def do_a():
    return src.b.do_b()
`,
		"src/b.py": `def do_b():
    return 1
`,
		"src/__init__.py": "",
	}
	for path, content := range files {
		full := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func TestGenerateKeys_PrintsKeyPathPairsForDiscoveredFiles(t *testing.T) {
	dir := setupTestProject(t)
	out, err := runCLI(t, dir, "--root", dir, "generate-keys", "src")
	require.NoError(t, err, out)
	assert.Contains(t, out, "a.py")
	assert.Contains(t, out, "b.py")
}

func TestGenerateKeys_WritesMainTrackerWithOutputFlag(t *testing.T) {
	dir := setupTestProject(t)
	trackerPath := filepath.Join(dir, "tracker.md")
	out, err := runCLI(t, dir, "--root", dir, "generate-keys", "src", "--output", trackerPath)
	require.NoError(t, err, out)

	contents, err := os.ReadFile(trackerPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "KEY_DEFINITIONS_START")
	assert.Contains(t, string(contents), "GRID_START")
}

func TestAnalyzeProject_RunsFullPipelineAndReportsTrackers(t *testing.T) {
	dir := setupTestProject(t)
	out, err := runCLI(t, dir, "--root", dir, "analyze-project")
	require.NoError(t, err, out)
	assert.Contains(t, out, "scanned")
	assert.Contains(t, out, "trackers")
}

func TestExportTracker_SummaryFormatPrintsKeyAndEdgeCounts(t *testing.T) {
	dir := setupTestProject(t)
	trackerPath := filepath.Join(dir, "tracker.md")
	_, err := runCLI(t, dir, "--root", dir, "generate-keys", "src", "--output", trackerPath)
	require.NoError(t, err)

	out, err := runCLI(t, dir, "export-tracker", trackerPath, "--format", "summary")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Keys:")
	assert.Contains(t, out, "Edges:")
}

func TestCompressDecompress_RoundTrip(t *testing.T) {
	out, err := runCLI(t, "", "compress", "pppppp")
	require.NoError(t, err, out)
	compressed := strings.TrimSpace(out)
	assert.Equal(t, "p6", compressed)

	out, err = runCLI(t, "", "decompress", compressed)
	require.NoError(t, err, out)
	assert.Equal(t, "pppppp", strings.TrimSpace(out))
}

func TestSuggestDependencies_WithSnapshotAndDiff_ReportsChanges(t *testing.T) {
	dir := setupTestProject(t)
	trackerPath := filepath.Join(dir, "tracker.md")
	_, err := runCLI(t, dir, "--root", dir, "generate-keys", "src", "--output", trackerPath)
	require.NoError(t, err)

	snapPath := filepath.Join(dir, "before.json")
	out, err := runCLI(t, dir, "--root", dir, "suggest-dependencies",
		"--tracker", trackerPath, "--snapshot", snapPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "applied")
	_, statErr := os.Stat(snapPath)
	assert.NoError(t, statErr)

	out, err = runCLI(t, dir, "--root", dir, "suggest-dependencies",
		"--tracker", trackerPath, "--diff", snapPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "applied")
}
