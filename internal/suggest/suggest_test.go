package suggest

import (
	"testing"

	"github.com/standardbeagle/deptrack/internal/config"
	"github.com/standardbeagle/deptrack/internal/embeddings"
	"github.com/stretchr/testify/assert"
)

func priorityOf(ch byte) int {
	p := map[byte]int{'.': 0, 'p': 1, 's': 2, 'S': 2, 'd': 3, '<': 3, '>': 3, 'x': 3, 'n': 3}
	return p[ch]
}

func TestCombineWithPriority_HigherPriorityWins(t *testing.T) {
	out := CombineWithPriority([]Suggestion{
		{TargetKey: "1A1", Char: 'p'},
		{TargetKey: "1A1", Char: 'S'},
	}, priorityOf)

	assert.Equal(t, []Suggestion{{TargetKey: "1A1", Char: 'S'}}, out)
}

func TestCombineWithPriority_LtGtMergeToX(t *testing.T) {
	out := CombineWithPriority([]Suggestion{
		{TargetKey: "1A1", Char: '<'},
		{TargetKey: "1A1", Char: '>'},
	}, priorityOf)

	assert.Equal(t, byte('x'), out[0].Char)
}

func TestCombineWithPriority_EqualPriorityKeepsIncumbent(t *testing.T) {
	out := CombineWithPriority([]Suggestion{
		{TargetKey: "1A1", Char: 'S'},
		{TargetKey: "1A1", Char: 's'},
	}, priorityOf)

	assert.Equal(t, byte('S'), out[0].Char)
}

func TestCombineWithPriority_LowerPriorityIgnored(t *testing.T) {
	out := CombineWithPriority([]Suggestion{
		{TargetKey: "1A1", Char: 'x'},
		{TargetKey: "1A1", Char: 'p'},
	}, priorityOf)

	assert.Equal(t, byte('x'), out[0].Char)
}

func TestResolvePythonImport_AbsoluteImport(t *testing.T) {
	paths := ResolvePythonImport("pkg.mod", "/proj/src", "/proj", 0)
	assert.Contains(t, paths, "/proj/pkg/mod.py")
}

func TestResolvePythonImport_RelativeImport(t *testing.T) {
	paths := ResolvePythonImport("sibling", "/proj/src/pkg", "/proj", 1)
	assert.Contains(t, paths, "/proj/src/pkg/sibling.py")
}

func TestResolveRelativePathImport_NonRelativeReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", ResolveRelativePathImport("react", "/proj/src", true))
}

func TestResolveRelativePathImport_WithExtension(t *testing.T) {
	got := ResolveRelativePathImport("./util.js", "/proj/src", true)
	assert.Equal(t, "/proj/src/util.js", got)
}

func TestSemanticSuggestions_FiltersBelowDocThreshold(t *testing.T) {
	thresholds := config.Thresholds{CodeSimilarity: 0.9, DocSimilarity: 0.5}
	source := embeddings.Vector{1, 0}
	others := map[string]embeddings.Vector{
		"close": {1, 0},
		"far":   {0, 1},
	}

	out := SemanticSuggestions("self", source, others, thresholds)

	assert.Len(t, out, 1)
	assert.Equal(t, "close", out[0].TargetKey)
	assert.Equal(t, byte('S'), out[0].Char)
}

func TestSemanticSuggestions_ExcludesSelf(t *testing.T) {
	thresholds := config.Thresholds{CodeSimilarity: 0.9, DocSimilarity: 0.1}
	source := embeddings.Vector{1, 0}
	others := map[string]embeddings.Vector{"self": {1, 0}}

	out := SemanticSuggestions("self", source, others, thresholds)

	assert.Empty(t, out)
}

func TestReciprocalChar(t *testing.T) {
	assert.Equal(t, byte('>'), ReciprocalChar('<'))
	assert.Equal(t, byte('<'), ReciprocalChar('>'))
	assert.Equal(t, byte('x'), ReciprocalChar('x'))
	assert.Equal(t, byte('S'), ReciprocalChar('S'))
}

func TestFuzzyResolveImport_MatchesRenamedModuleAboveThreshold(t *testing.T) {
	candidates := []string{"/proj/src/database_utils.py", "/proj/src/widgets.py"}

	match, ok := FuzzyResolveImport("databse_utils", candidates, 0.85)

	assert.True(t, ok)
	assert.Equal(t, "/proj/src/database_utils.py", match)
}

func TestFuzzyResolveImport_NoCandidateMeetsThreshold(t *testing.T) {
	candidates := []string{"/proj/src/widgets.py"}

	_, ok := FuzzyResolveImport("completely_unrelated_name", candidates, 0.9)

	assert.False(t, ok)
}
