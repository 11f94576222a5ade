// Package grid implements the run-length-encoded dependency grid format,
// its character-level accessors, and dependency mutation/retrieval over an
// ordered key list.
package grid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/standardbeagle/deptrack/internal/depterr"
)

const (
	// DiagonalChar marks a key's relationship to itself.
	DiagonalChar = 'o'
	// PlaceholderChar fills cells that have not yet been analyzed.
	PlaceholderChar = 'p'
	// EmptyChar marks cells with no dependency.
	EmptyChar = '.'
)

// Compress and Decompress walk the string directly rather than through a
// regexp: Go's RE2 engine has no backreferences, so the original's
// COMPRESSION_PATTERN (`([^o])\1{2,}`) has no direct equivalent here.

// Compress run-length-encodes s: a run of length >= 3 of the same character
// c (c != 'o') becomes "c<count>"; shorter runs are emitted literally.
func Compress(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	i := 0
	for i < len(runes) {
		c := runes[i]
		j := i + 1
		for j < len(runes) && runes[j] == c {
			j++
		}
		count := j - i
		if c != 'o' && count >= 3 {
			b.WriteRune(c)
			b.WriteString(strconv.Itoa(count))
		} else {
			for k := 0; k < count; k++ {
				b.WriteRune(c)
			}
		}
		i = j
	}
	return b.String()
}

// Decompress expands a run-length-encoded string: a character immediately
// followed by one or more digits expands to that many repeats; any other
// character is emitted verbatim.
func Decompress(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	hasDigit := false
	for _, r := range runes {
		if r >= '0' && r <= '9' {
			hasDigit = true
			break
		}
	}
	if len(runes) <= 3 && !hasDigit {
		return s
	}

	var b strings.Builder
	i := 0
	for i < len(runes) {
		if i+1 < len(runes) && isDigit(runes[i+1]) {
			c := runes[i]
			j := i + 1
			for j < len(runes) && isDigit(runes[j]) {
				j++
			}
			count, _ := strconv.Atoi(string(runes[i+1 : j]))
			for k := 0; k < count; k++ {
				b.WriteRune(c)
			}
			i = j
		} else {
			b.WriteRune(runes[i])
			i++
		}
	}
	return b.String()
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// CreateInitialRow returns a compressed row of n placeholder cells with the
// diagonal cell at position idx set to 'o'.
func CreateInitialRow(idx, n int) string {
	cells := make([]rune, n)
	for i := range cells {
		cells[i] = PlaceholderChar
	}
	if idx >= 0 && idx < n {
		cells[idx] = DiagonalChar
	}
	return Compress(string(cells))
}

// GetChar returns the character at position idx of the decompressed row.
func GetChar(compressed string, idx int) (rune, error) {
	decompressed := []rune(Decompress(compressed))
	if idx < 0 || idx >= len(decompressed) {
		return 0, depterr.NewGridError("", fmt.Sprintf("index %d out of range (row length %d)", idx, len(decompressed)))
	}
	return decompressed[idx], nil
}

// SetChar returns a new compressed row with position idx set to ch. It
// rejects writing 'o' off the diagonal and any non-'o' character onto it.
func SetChar(compressed string, idx int, ch rune, isDiagonal bool) (string, error) {
	decompressed := []rune(Decompress(compressed))
	if idx < 0 || idx >= len(decompressed) {
		return "", depterr.NewGridError("", fmt.Sprintf("index %d out of range (row length %d)", idx, len(decompressed)))
	}
	if ch == DiagonalChar && !isDiagonal {
		return "", depterr.NewGridError("", fmt.Sprintf("cannot write diagonal character 'o' at non-diagonal index %d", idx))
	}
	if ch != DiagonalChar && isDiagonal {
		return "", depterr.NewGridError("", fmt.Sprintf("cannot overwrite diagonal cell at index %d with non-diagonal character %q", idx, ch))
	}
	decompressed[idx] = ch
	return Compress(string(decompressed)), nil
}

// Grid maps a key string to its compressed dependency row.
type Grid map[string]string

// NewInitial builds a grid over orderedKeys with every row initialized to
// placeholders and the diagonal set to 'o'.
func NewInitial(orderedKeys []string) Grid {
	g := make(Grid, len(orderedKeys))
	n := len(orderedKeys)
	for i, k := range orderedKeys {
		g[k] = CreateInitialRow(i, n)
	}
	return g
}

// AddDependency sets the cell (sourceKey, targetKey) to depChar, returning a
// new grid. It is an error to target the diagonal cell (self-dependency is
// always 'o' and cannot be set directly).
func AddDependency(g Grid, sourceKey, targetKey string, orderedKeys []string, depChar rune) (Grid, error) {
	srcIdx, tgtIdx, err := indicesOf(orderedKeys, sourceKey, targetKey)
	if err != nil {
		return nil, err
	}
	if srcIdx == tgtIdx {
		return nil, depterr.NewGridError("", fmt.Sprintf("cannot set a direct self-dependency for key %q", sourceKey))
	}

	newGrid := g.clone()
	row := newGrid[sourceKey]
	if row == "" {
		row = CreateInitialRow(-1, len(orderedKeys))
	}
	updated, err := SetChar(row, tgtIdx, depChar, false)
	if err != nil {
		return nil, err
	}
	newGrid[sourceKey] = updated
	return newGrid, nil
}

// RemoveDependency clears the cell (sourceKey, targetKey) back to EmptyChar.
func RemoveDependency(g Grid, sourceKey, targetKey string, orderedKeys []string) (Grid, error) {
	srcIdx, tgtIdx, err := indicesOf(orderedKeys, sourceKey, targetKey)
	if err != nil {
		return nil, err
	}
	if srcIdx == tgtIdx {
		return g, nil
	}

	newGrid := g.clone()
	row := newGrid[sourceKey]
	if row == "" {
		row = CreateInitialRow(-1, len(orderedKeys))
	}
	updated, err := SetChar(row, tgtIdx, EmptyChar, false)
	if err != nil {
		return nil, err
	}
	newGrid[sourceKey] = updated
	return newGrid, nil
}

func (g Grid) clone() Grid {
	out := make(Grid, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}

func indicesOf(orderedKeys []string, a, b string) (int, int, error) {
	ai, bi := -1, -1
	for i, k := range orderedKeys {
		if k == a {
			ai = i
		}
		if k == b {
			bi = i
		}
	}
	if ai == -1 || bi == -1 {
		return 0, 0, depterr.NewGridError("", fmt.Sprintf("key %q or %q not present in key list", a, b))
	}
	return ai, bi, nil
}

// definedDepChars are the characters GetDependencies groups by.
var definedDepChars = map[rune]bool{'<': true, '>': true, 'x': true, 'd': true, 's': true, 'S': true}

// GetDependencies returns sourceKey's outgoing relationships grouped by
// character, excluding the diagonal and empty cells.
func GetDependencies(g Grid, sourceKey string, orderedKeys []string) (map[rune][]string, error) {
	srcIdx := -1
	for i, k := range orderedKeys {
		if k == sourceKey {
			srcIdx = i
			break
		}
	}
	if srcIdx == -1 {
		return nil, depterr.NewGridError("", fmt.Sprintf("source key %q not present in key list", sourceKey))
	}

	row := g[sourceKey]
	if row == "" {
		return map[rune][]string{}, nil
	}
	decompressed := []rune(Decompress(row))

	results := make(map[rune][]string)
	for colIdx, targetKey := range orderedKeys {
		if colIdx == srcIdx || colIdx >= len(decompressed) {
			continue
		}
		c := decompressed[colIdx]
		if definedDepChars[c] {
			results[c] = append(results[c], targetKey)
		} else if c == PlaceholderChar {
			results[PlaceholderChar] = append(results[PlaceholderChar], targetKey)
		}
	}
	return results, nil
}

// Validate checks grid for consistency against orderedKeys: row keys match
// exactly, every row decompresses to len(orderedKeys), and every row's
// diagonal cell is 'o'.
func Validate(g Grid, orderedKeys []string) error {
	expected := make(map[string]bool, len(orderedKeys))
	for _, k := range orderedKeys {
		expected[k] = true
	}
	for k := range g {
		if !expected[k] {
			return depterr.NewGridError("", fmt.Sprintf("extra row for key %q not in key list", k))
		}
	}
	for _, k := range orderedKeys {
		if _, ok := g[k]; !ok {
			return depterr.NewGridError("", fmt.Sprintf("missing row for key %q", k))
		}
	}

	n := len(orderedKeys)
	for idx, k := range orderedKeys {
		decompressed := []rune(Decompress(g[k]))
		if len(decompressed) != n {
			return depterr.NewGridError("", fmt.Sprintf("row %q has length %d, expected %d", k, len(decompressed), n))
		}
		if decompressed[idx] != DiagonalChar {
			return depterr.NewGridError("", fmt.Sprintf("row %q has non-diagonal character %q at index %d", k, decompressed[idx], idx))
		}
	}
	return nil
}

// FormatForDisplay renders grid as the "X <keys...>" header plus one
// "<key> = <row>" line per key, in orderedKeys order.
func FormatForDisplay(g Grid, orderedKeys []string) string {
	var b strings.Builder
	b.WriteString("X " + strings.Join(orderedKeys, " "))
	placeholderRow := CreateInitialRow(-1, len(orderedKeys))
	for _, k := range orderedKeys {
		row, ok := g[k]
		if !ok {
			row = placeholderRow
		}
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(" = ")
		b.WriteString(row)
	}
	return b.String()
}
