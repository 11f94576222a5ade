package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeepMerge_ExclusionsUnion(t *testing.T) {
	base := &Config{
		ExcludedDirs: []string{".git", "node_modules"},
	}
	project := &Config{
		ExcludedDirs: []string{"dist", "node_modules"},
	}

	merged := deepMerge(base, project)

	assert.ElementsMatch(t, []string{".git", "node_modules", "dist"}, merged.ExcludedDirs)
}

func TestDeepMerge_ExcludeFilesAliasFoldsIntoExcludedPaths(t *testing.T) {
	base := &Config{ExcludedPaths: []string{"/proj/legacy"}}
	project := &Config{
		ExcludedPaths: []string{"/proj/generated"},
		ExcludeFiles:  []string{"/proj/scratch.tmp"},
	}

	merged := deepMerge(base, project)

	assert.Contains(t, merged.ExcludedPaths, "/proj/legacy")
	assert.Contains(t, merged.ExcludedPaths, "/proj/generated")
	assert.Contains(t, merged.ExcludedPaths, "/proj/scratch.tmp")
}

func TestDeepMerge_ScalarOverrideOnlyWhenNonZero(t *testing.T) {
	base := Default()
	project := &Config{
		Thresholds: Thresholds{CodeSimilarity: 0.9},
	}

	merged := deepMerge(base, project)

	assert.Equal(t, 0.9, merged.Thresholds.CodeSimilarity)
	assert.Equal(t, base.Thresholds.DocSimilarity, merged.Thresholds.DocSimilarity)
}

func TestDeepMerge_CodeRootDirectoriesOverrideWhenNonEmpty(t *testing.T) {
	base := Default()
	project := &Config{CodeRootDirectories: []string{"lib", "app"}}

	merged := deepMerge(base, project)

	assert.Equal(t, []string{"lib", "app"}, merged.CodeRootDirectories)
}

func TestDeepMerge_CodeRootDirectoriesKeptWhenProjectEmpty(t *testing.T) {
	base := Default()
	project := &Config{}

	merged := deepMerge(base, project)

	assert.Equal(t, base.CodeRootDirectories, merged.CodeRootDirectories)
}

func TestDeepMerge_CharPriorityOverridesKeyByKey(t *testing.T) {
	base := Default()
	project := &Config{CharPriority: map[string]int{"p": 5}}

	merged := deepMerge(base, project)

	assert.Equal(t, 5, merged.CharPriority["p"])
	assert.Equal(t, base.CharPriority["d"], merged.CharPriority["d"])
}
