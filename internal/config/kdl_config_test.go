package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKDL_MissingFileReturnsNil(t *testing.T) {
	tmp := t.TempDir()

	cfg, err := LoadKDL(tmp)

	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadKDL_ParsesExclusionsAndThresholds(t *testing.T) {
	tmp := t.TempDir()
	doc := `
excluded_dirs {
    "dist"
    "build"
}
code_root_directories { "lib" }
thresholds {
    code_similarity 0.92
    doc_similarity 0.6
}
models {
    code_model_name "local-code-model"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(tmp, KDLFileName), []byte(doc), 0o644))

	cfg, err := LoadKDL(tmp)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.ElementsMatch(t, []string{"dist", "build"}, cfg.ExcludedDirs)
	assert.Equal(t, []string{"lib"}, cfg.CodeRootDirectories)
	assert.Equal(t, 0.92, cfg.Thresholds.CodeSimilarity)
	assert.Equal(t, 0.6, cfg.Thresholds.DocSimilarity)
	assert.Equal(t, "local-code-model", cfg.Models.CodeModelName)
}

func TestLoadKDL_MergesOntoDefaultsViaDeepMerge(t *testing.T) {
	tmp := t.TempDir()
	doc := `thresholds { code_similarity 0.95 }`
	require.NoError(t, os.WriteFile(filepath.Join(tmp, KDLFileName), []byte(doc), 0o644))

	kdlCfg, err := LoadKDL(tmp)
	require.NoError(t, err)

	merged := deepMerge(Default(), kdlCfg)

	assert.Equal(t, 0.95, merged.Thresholds.CodeSimilarity)
	assert.Equal(t, Default().Thresholds.DocSimilarity, merged.Thresholds.DocSimilarity)
	assert.Equal(t, Default().ExcludedDirs, merged.ExcludedDirs)
}
