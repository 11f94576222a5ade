package embeddings

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/standardbeagle/deptrack/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEncoder_Deterministic(t *testing.T) {
	enc := NewHashEncoder(64)
	v1, err := enc.Encode("hello world hello")
	require.NoError(t, err)
	v2, err := enc.Encode("hello world hello")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestHashEncoder_StemsWordVariationsIntoSameVocabulary(t *testing.T) {
	enc := NewHashEncoder(64)
	a, err := enc.Encode("authenticate")
	require.NoError(t, err)
	b, err := enc.Encode("authentication")
	require.NoError(t, err)

	assert.Equal(t, a, b, "authenticate/authentication should stem to the same bucket vector")
}

func TestHashEncoder_SimilarTextMoreSimilarThanUnrelated(t *testing.T) {
	enc := NewHashEncoder(128)
	a, _ := enc.Encode("def process_file path content")
	b, _ := enc.Encode("def process_file path content extra")
	c, _ := enc.Encode("completely unrelated banana cart wheel")

	simAB := CosineSimilarity(a, b)
	simAC := CosineSimilarity(a, c)
	assert.Greater(t, simAB, simAC)
}

func TestCosineSimilarity_ZeroVectorYieldsZero(t *testing.T) {
	a := Vector{0, 0, 0}
	b := Vector{1, 0, 0}
	assert.Equal(t, 0.0, CosineSimilarity(a, b))
}

func TestCosineSimilarity_ClampedToOne(t *testing.T) {
	a := Vector{1, 0}
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
}

func TestPreprocessForEmbedding_StripsImportsAndWeightsDefs(t *testing.T) {
	src := "import os\nfrom pkg import thing\n\ndef run():\n    return 1\n"
	out := PreprocessForEmbedding("a.py", src)

	assert.NotContains(t, out, "import os")
	assert.NotContains(t, out, "from pkg")
	count := 0
	for i := 0; i+len("def run():") <= len(out); i++ {
		if out[i:i+len("def run():")] == "def run():" {
			count++
		}
	}
	assert.GreaterOrEqual(t, count, 2)
}

func TestPreprocessForEmbedding_NonPythonPassesThrough(t *testing.T) {
	src := "import Foo from './foo';\n"
	assert.Equal(t, src, PreprocessForEmbedding("a.js", src))
}

func TestSelectDevice_FallsBackToCPU(t *testing.T) {
	assert.Equal(t, "cpu", SelectDevice(config.DeviceAuto))
	assert.Equal(t, "cpu", SelectDevice(config.DeviceCUDA))
	assert.Equal(t, "cpu", SelectDevice(config.DeviceMPS))
}

func TestThresholds(t *testing.T) {
	th := config.Thresholds{CodeSimilarity: 0.8, DocSimilarity: 0.65}
	assert.Equal(t, byte('S'), Thresholds(0.9, th))
	assert.Equal(t, byte('s'), Thresholds(0.7, th))
	assert.Equal(t, byte('.'), Thresholds(0.3, th))
}

func TestManager_EnsureEmbedding_PersistsAndReusesVector(t *testing.T) {
	tmp := t.TempDir()
	mgr := NewManager(tmp, NewHashEncoder(32))

	mtime := time.Unix(1000, 0)
	v1, err := mgr.EnsureEmbedding("src/a.py", filepath.Join(tmp, "src/a.py"), mtime, "def run():\n    return 1\n")
	require.NoError(t, err)
	require.NotNil(t, v1)

	v2, err := mgr.EnsureEmbedding("src/a.py", filepath.Join(tmp, "src/a.py"), mtime, "def run():\n    return 1\n")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestManager_EnsureEmbedding_ReencodesOnMtimeChange(t *testing.T) {
	tmp := t.TempDir()
	mgr := NewManager(tmp, NewHashEncoder(32))

	_, err := mgr.EnsureEmbedding("src/a.py", filepath.Join(tmp, "src/a.py"), time.Unix(1000, 0), "def run():\n    return 1\n")
	require.NoError(t, err)

	v2, err := mgr.EnsureEmbedding("src/a.py", filepath.Join(tmp, "src/a.py"), time.Unix(2000, 0), "def run():\n    return 2\n")
	require.NoError(t, err)
	assert.NotNil(t, v2)
}

func TestManager_EnsureEmbedding_EmptyAfterPreprocessingReturnsNil(t *testing.T) {
	tmp := t.TempDir()
	mgr := NewManager(tmp, NewHashEncoder(32))

	vec, err := mgr.EnsureEmbedding("src/only_imports.py", filepath.Join(tmp, "src/only_imports.py"), time.Unix(1000, 0), "import os\n")
	require.NoError(t, err)
	assert.Nil(t, vec)
}
