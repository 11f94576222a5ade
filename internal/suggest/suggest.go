// Package suggest implements explicit import/link resolution per language,
// semantic suggestions sourced from the embedding manager, and the
// priority-based merge that reconciles them into one character per target
// key.
package suggest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hbollon/go-edlib"
	"github.com/standardbeagle/deptrack/internal/config"
	"github.com/standardbeagle/deptrack/internal/embeddings"
	"github.com/standardbeagle/deptrack/internal/pathutil"
)

// Suggestion is one proposed edge: targetKey with a proposed relationship
// character, before priority-based combination.
type Suggestion struct {
	TargetKey string
	Char      byte
}

// CombineWithPriority reconciles multiple suggestions for possibly-repeated
// target keys into one suggestion per key: higher-priority character wins;
// equal priority keeps the incumbent, except '<' and '>' at equal priority
// merge into 'x'.
func CombineWithPriority(suggestions []Suggestion, priorityOf func(ch byte) int) []Suggestion {
	combined := make(map[string]byte)
	order := make([]string, 0, len(suggestions))

	for _, s := range suggestions {
		if s.TargetKey == "" {
			continue
		}
		current, exists := combined[s.TargetKey]
		if !exists {
			combined[s.TargetKey] = s.Char
			order = append(order, s.TargetKey)
			continue
		}

		currentPriority := priorityOf(current)
		newPriority := priorityOf(s.Char)

		switch {
		case newPriority > currentPriority:
			combined[s.TargetKey] = s.Char
		case newPriority == currentPriority && s.Char != current:
			if isLtGt(s.Char, current) {
				combined[s.TargetKey] = 'x'
			}
			// else: keep the incumbent, an arbitrary but consistent choice
		}
	}

	out := make([]Suggestion, 0, len(order))
	for _, key := range order {
		out = append(out, Suggestion{TargetKey: key, Char: combined[key]})
	}
	return out
}

func isLtGt(a, b byte) bool {
	return (a == '<' && b == '>') || (a == '>' && b == '<')
}

// ResolvePythonImport converts an import name (dotted path, possibly
// relative) into candidate absolute file paths under projectRoot. level > 0
// means a "from . import x"-style relative import with that many leading
// dots; level == 0 is an absolute (top-level) import.
func ResolvePythonImport(importName, sourceDir, projectRoot string, level int) []string {
	normRoot := pathutil.Normalize(projectRoot)
	normSourceDir := pathutil.Normalize(sourceDir)

	var candidates []string

	if level > 0 {
		currentDir := normSourceDir
		ok := true
		for i := 0; i < level-1; i++ {
			parent := filepath.Dir(currentDir)
			if parent == "" || parent == currentDir || !strings.HasPrefix(parent, normRoot) {
				ok = false
				break
			}
			currentDir = parent
		}
		if ok {
			if importName != "" {
				modulePath := strings.ReplaceAll(importName, ".", string(filepath.Separator))
				base := pathutil.Normalize(filepath.Join(currentDir, modulePath))
				candidates = append(candidates, base+".py", pathutil.Normalize(filepath.Join(base, "__init__.py")))
			} else {
				candidates = append(candidates, pathutil.Normalize(filepath.Join(currentDir, "__init__.py")))
			}
		}
	} else if importName != "" && !strings.HasPrefix(importName, ".") {
		modulePath := strings.ReplaceAll(importName, ".", string(filepath.Separator))
		base := pathutil.Normalize(filepath.Join(normRoot, modulePath))
		candidates = append(candidates, base+".py", pathutil.Normalize(filepath.Join(base, "__init__.py")))
	}

	final := candidates[:0]
	for _, c := range candidates {
		if strings.HasPrefix(c, normRoot) {
			final = append(final, c)
		}
	}
	return final
}

// jsResolveExtensions are tried in order when an import specifier has no
// extension of its own.
var jsResolveExtensions = []string{".js", ".ts", ".jsx", ".tsx", "/index.js", "/index.ts"}

// ResolveRelativePathImport resolves a specifier starting with "." or "/"
// (JS/TS import, Markdown link, HTML src/href, CSS @import) by joining it
// to sourceDir. When tryExtensions is set and the specifier has no
// extension, it returns the first of jsResolveExtensions that exists on
// disk, or the ".js" form if none does. Returns "" for any other specifier.
func ResolveRelativePathImport(specifier, sourceDir string, tryExtensions bool) string {
	if specifier == "" || (!strings.HasPrefix(specifier, ".") && !strings.HasPrefix(specifier, "/")) {
		return ""
	}
	base := filepath.Join(sourceDir, specifier)
	if !tryExtensions {
		return pathutil.Normalize(base)
	}
	if filepath.Ext(base) != "" {
		return pathutil.Normalize(base)
	}
	for _, ext := range jsResolveExtensions {
		candidate := base + ext
		if _, err := os.Stat(candidate); err == nil {
			return pathutil.Normalize(candidate)
		}
	}
	return pathutil.Normalize(base + jsResolveExtensions[0])
}

// SemanticSuggestions compares sourceVec against every other file's vector
// in otherVectors and returns one Suggestion per comparison whose
// similarity clears threshold.DocSimilarity, classified per
// embeddings.Thresholds.
func SemanticSuggestions(sourceKey string, sourceVec embeddings.Vector, otherVectors map[string]embeddings.Vector, thresholds config.Thresholds) []Suggestion {
	var out []Suggestion
	for targetKey, vec := range otherVectors {
		if targetKey == sourceKey {
			continue
		}
		sim := embeddings.CosineSimilarity(sourceVec, vec)
		char := embeddings.Thresholds(sim, thresholds)
		if char == '.' {
			continue
		}
		out = append(out, Suggestion{TargetKey: targetKey, Char: char})
	}
	return out
}

// ReciprocalChar returns the character that should appear in the target's
// row for an outgoing edge of char from the source: '<'/'>' indicate
// direction and flip, while 'x'/'d'/'s'/'S' are symmetric and pass through
// unchanged.
func ReciprocalChar(char byte) byte {
	switch char {
	case '<':
		return '>'
	case '>':
		return '<'
	default:
		return char
	}
}

// FuzzyResolveImport falls back to Jaro-Winkler name similarity when an
// import's module name doesn't resolve to an existing path exactly: a
// renamed or typo'd module ("databse_utils" importing "database_utils")
// still links up instead of the edge silently dropping. candidatePaths are
// compared by their base name (extension stripped) against the last
// segment of name; the closest match at or above threshold wins.
func FuzzyResolveImport(name string, candidatePaths []string, threshold float64) (string, bool) {
	target := strings.ToLower(lastSegment(name))
	if target == "" {
		return "", false
	}

	best := ""
	var bestScore float64
	for _, cp := range candidatePaths {
		base := strings.ToLower(strings.TrimSuffix(filepath.Base(cp), filepath.Ext(cp)))
		score, err := edlib.StringsSimilarity(target, base, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if float64(score) > bestScore {
			bestScore = float64(score)
			best = cp
		}
	}
	if best != "" && bestScore >= threshold {
		return best, true
	}
	return "", false
}

func lastSegment(name string) string {
	name = strings.ReplaceAll(name, string(filepath.Separator), ".")
	parts := strings.Split(name, ".")
	return parts[len(parts)-1]
}
