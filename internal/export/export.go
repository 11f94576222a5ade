// Package export renders a tracker's key map and grid into
// presentation-only formats: a Mermaid flowchart and a short per-key
// edge-count digest.
//
// It takes a keys.KeyMap and a grid.Grid directly, rather than a
// *tracker.Data, so internal/tracker can call into this package for its
// "mermaid"/"summary" export formats without an import cycle.
package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/deptrack/internal/grid"
	"github.com/standardbeagle/deptrack/internal/keys"
)

// isReportableChar matches tracker's own edge filter: not empty, diagonal,
// or placeholder.
func isReportableChar(ch rune) bool {
	return ch != rune(grid.EmptyChar) && ch != rune(grid.DiagonalChar) && ch != rune(grid.PlaceholderChar)
}

// forEachEdge walks every reportable cell of g in sortedKeys row/column
// order, calling fn once per edge.
func forEachEdge(g grid.Grid, sortedKeys []string, fn func(sourceKey, targetKey string, ch rune)) {
	for _, sourceKey := range sortedKeys {
		compressedRow, ok := g[sourceKey]
		if !ok {
			continue
		}
		decompressed := []rune(grid.Decompress(compressedRow))
		if len(decompressed) != len(sortedKeys) {
			continue
		}
		for j, ch := range decompressed {
			if isReportableChar(ch) {
				fn(sourceKey, sortedKeys[j], ch)
			}
		}
	}
}

// Mermaid renders keyMap/g as a `graph LR` Mermaid flowchart: one node per
// key labeled with its key and path basename, one edge per reportable cell, arrow
// direction chosen per dependency character.
func Mermaid(keyMap keys.KeyMap, g grid.Grid) (string, error) {
	sortedKeys := keys.Sort(keyList(keyMap))
	if err := grid.Validate(g, sortedKeys); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("graph LR\n")
	for _, k := range sortedKeys {
		fmt.Fprintf(&b, "  %s[%q]\n", k, k+": "+filepath.Base(keyMap[k]))
	}
	forEachEdge(g, sortedKeys, func(sourceKey, targetKey string, ch rune) {
		arrow := "-->"
		switch ch {
		case '<':
			arrow = "<--"
		case 'x':
			arrow = "<-->"
		}
		fmt.Fprintf(&b, "  %s %s|%c| %s\n", sourceKey, arrow, ch, targetKey)
	})
	return b.String(), nil
}

// Summary renders a short text digest: total key/edge counts, then one line
// per key naming its outgoing edge count, for a quick human-readable health
// check of a tracker without opening the full grid.
func Summary(keyMap keys.KeyMap, g grid.Grid) (string, error) {
	sortedKeys := keys.Sort(keyList(keyMap))
	if err := grid.Validate(g, sortedKeys); err != nil {
		return "", err
	}

	counts := make(map[string]int, len(sortedKeys))
	total := 0
	forEachEdge(g, sortedKeys, func(sourceKey, targetKey string, ch rune) {
		counts[sourceKey]++
		total++
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Keys: %d\n", len(sortedKeys))
	fmt.Fprintf(&b, "Edges: %d\n\n", total)
	for _, k := range sortedKeys {
		fmt.Fprintf(&b, "%s (%s): %d outgoing\n", k, keyMap[k], counts[k])
	}
	return b.String(), nil
}

func keyList(keyMap keys.KeyMap) []string {
	out := make([]string, 0, len(keyMap))
	for k := range keyMap {
		out = append(out, k)
	}
	return out
}
