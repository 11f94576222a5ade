package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_ForwardSlashes(t *testing.T) {
	n := Normalize("/a/b/../c")
	assert.Equal(t, "/a/c", n)
}

func TestIsSubpath(t *testing.T) {
	assert.True(t, IsSubpath("/proj/src/a.go", "/proj/src"))
	assert.True(t, IsSubpath("/proj/src", "/proj/src"))
	assert.False(t, IsSubpath("/proj/other/a.go", "/proj/src"))
}

func TestToRelative_OutsideRootFallsBackToAbsolute(t *testing.T) {
	rel := ToRelative("/other/location/file.go", "/home/user/project")
	assert.Equal(t, "/other/location/file.go", rel)
}

func TestToRelative_InsideRoot(t *testing.T) {
	rel := ToRelative(filepath.Join("/home/user/project", "src/main.go"), "/home/user/project")
	assert.Equal(t, "src/main.go", rel)
}

func TestGetProjectRoot_FindsGitMarker(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(tmp, ".git"), 0o755))
	nested := filepath.Join(tmp, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	root := GetProjectRoot(nested)
	expected, _ := filepath.Abs(tmp)
	assert.Equal(t, expected, root)
}

func TestGetProjectRoot_FallsBackToStartDir(t *testing.T) {
	tmp := t.TempDir()
	root := GetProjectRoot(tmp)
	expected, _ := filepath.Abs(tmp)
	assert.Equal(t, expected, root)
}
