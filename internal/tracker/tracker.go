// Package tracker implements tracker I/O: parsing
// and writing the marker-delimited tracker file format, the backup-before-
// write and canonical-sort-and-validate-before-write rules, the tracker
// update algorithm that reconciles a tracker's grid against newly suggested
// dependencies, merge, file removal, and export to md/json/csv/dot/mermaid/
// summary.
package tracker

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/standardbeagle/deptrack/internal/depterr"
	"github.com/standardbeagle/deptrack/internal/export"
	"github.com/standardbeagle/deptrack/internal/grid"
	"github.com/standardbeagle/deptrack/internal/keys"
	"github.com/standardbeagle/deptrack/internal/pathutil"
)

// Kind identifies which of the three tracker flavors a file is.
type Kind string

const (
	KindMain Kind = "main"
	KindDoc  Kind = "doc"
	KindMini Kind = "mini"
)

// MiniMarkerStart and MiniMarkerEnd delimit the verbatim template content a
// mini tracker carries around its generated key-definitions/grid section.
const (
	MiniMarkerStart = "---mini_tracker_start---"
	MiniMarkerEnd   = "---mini_tracker_end---"
)

var (
	keyDefSection  = regexp.MustCompile(`(?is)---KEY_DEFINITIONS_START---\r?\n(.*?)\r?\n---KEY_DEFINITIONS_END---`)
	gridSection    = regexp.MustCompile(`(?is)---GRID_START---\r?\n(.*?)\r?\n---GRID_END---`)
	keyDefLine     = regexp.MustCompile(`^([a-zA-Z0-9]+)\s*:\s*(.*)$`)
	gridLine       = regexp.MustCompile(`^([a-zA-Z0-9]+)\s*=\s*(.*)$`)
	lastKeyEditRe  = regexp.MustCompile(`(?im)^last_KEY_edit\s*:\s*(.*)$`)
	lastGridEditRe = regexp.MustCompile(`(?im)^last_GRID_edit\s*:\s*(.*)$`)
	backupNameRe   = regexp.MustCompile(`\.(\d{8}_\d{6}_\d{6})\.bak$`)
)

// Data is the parsed content of a tracker file: key definitions, the
// compressed grid rows keyed by row key, and the two free-form edit
// metadata lines.
type Data struct {
	Keys         keys.KeyMap
	Grid         grid.Grid
	LastKeyEdit  string
	LastGridEdit string
}

// Read parses a tracker file, tolerating malformed lines by skipping and
// logging them rather than failing the whole read. A missing file returns
// an empty Data, not an error, matching the original's "return empty
// structure" behavior for a tracker that has not been created yet.
func Read(trackerPath string) (*Data, error) {
	trackerPath = pathutil.Normalize(trackerPath)
	data := &Data{Keys: keys.KeyMap{}, Grid: grid.Grid{}}

	content, err := os.ReadFile(trackerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, depterr.NewIOError("read tracker", trackerPath, err)
	}

	return parse(string(content), trackerPath), nil
}

func parse(content, trackerPath string) *Data {
	data := &Data{Keys: keys.KeyMap{}, Grid: grid.Grid{}}

	if m := keyDefSection.FindStringSubmatch(content); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(strings.ToLower(line), "key definitions:") {
				continue
			}
			mm := keyDefLine.FindStringSubmatch(line)
			if mm == nil {
				log.Printf("tracker: skipping malformed key definition line in %s: %q", trackerPath, line)
				continue
			}
			k, v := mm[1], mm[2]
			if !keys.Validate(k) {
				log.Printf("tracker: skipping invalid key format in %s: %q", trackerPath, k)
				continue
			}
			data.Keys[k] = pathutil.Normalize(strings.TrimSpace(v))
		}
	}

	if m := gridSection.FindStringSubmatch(content); m != nil {
		lines := strings.Split(strings.TrimSpace(m[1]), "\n")
		if len(lines) > 0 {
			first := strings.ToUpper(strings.TrimSpace(lines[0]))
			if first == "X" || strings.HasPrefix(first, "X ") {
				lines = lines[1:]
			}
		}
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			mm := gridLine.FindStringSubmatch(line)
			if mm == nil {
				log.Printf("tracker: skipping malformed grid line in %s: %q", trackerPath, line)
				continue
			}
			k, v := mm[1], mm[2]
			if !keys.Validate(k) {
				log.Printf("tracker: grid row key %q in %s has invalid format, skipping", k, trackerPath)
				continue
			}
			data.Grid[k] = strings.TrimSpace(v)
		}
	}

	if m := lastKeyEditRe.FindStringSubmatch(content); m != nil {
		data.LastKeyEdit = strings.TrimSpace(m[1])
	}
	if m := lastGridEditRe.FindStringSubmatch(content); m != nil {
		data.LastGridEdit = strings.TrimSpace(m[1])
	}
	return data
}

// Write sorts keys canonically, validates g against that order (a
// validation failure aborts the write entirely), re-derives each row in
// that order with the diagonal restored, and writes the file. When the
// existing file carries MiniMarkerStart/MiniMarkerEnd, the content before
// the start marker and after the end marker is kept verbatim and the
// generated section replaces what lies between them.
func Write(trackerPath string, keyMap keys.KeyMap, g grid.Grid, lastKeyEdit, lastGridEdit string) error {
	trackerPath = pathutil.Normalize(trackerPath)
	if err := os.MkdirAll(filepath.Dir(trackerPath), 0o755); err != nil {
		return depterr.NewIOError("mkdir tracker dir", filepath.Dir(trackerPath), err)
	}

	sortedKeys := SortedKeyList(keyMap)

	if err := grid.Validate(g, sortedKeys); err != nil {
		return fmt.Errorf("aborting write to %s: %w", trackerPath, err)
	}

	finalGrid := rebuildGrid(g, sortedKeys)

	var b strings.Builder
	b.WriteString("---KEY_DEFINITIONS_START---\n")
	b.WriteString("Key Definitions:\n")
	for _, k := range sortedKeys {
		fmt.Fprintf(&b, "%s: %s\n", k, pathutil.Normalize(keyMap[k]))
	}
	b.WriteString("---KEY_DEFINITIONS_END---\n\n")

	fmt.Fprintf(&b, "last_KEY_edit: %s\n", lastKeyEdit)
	fmt.Fprintf(&b, "last_GRID_edit: %s\n\n", lastGridEdit)

	b.WriteString("---GRID_START---\n")
	if len(sortedKeys) > 0 {
		fmt.Fprintf(&b, "X %s\n", strings.Join(sortedKeys, " "))
		for _, k := range sortedKeys {
			fmt.Fprintf(&b, "%s = %s\n", k, finalGrid[k])
		}
	} else {
		b.WriteString("X \n")
	}
	b.WriteString("---GRID_END---\n")

	out := b.String()
	if prev, err := os.ReadFile(trackerPath); err == nil {
		s := string(prev)
		start := strings.Index(s, MiniMarkerStart)
		end := strings.Index(s, MiniMarkerEnd)
		if start >= 0 && end > start {
			out = s[:start+len(MiniMarkerStart)] + "\n\n" + out + "\n" + s[end:]
		}
	}

	if err := os.WriteFile(trackerPath, []byte(out), 0o644); err != nil {
		return depterr.NewIOError("write tracker", trackerPath, err)
	}
	log.Printf("tracker: wrote %s with %d keys", trackerPath, len(sortedKeys))
	return nil
}

// rebuildGrid produces a grid over sortedKeys, reusing decompressed cells
// from g wherever both endpoints survive, and placeholder-initializing
// anything new. g's rows need not already be ordered or sized to
// sortedKeys.
func rebuildGrid(g grid.Grid, sortedKeys []string) grid.Grid {
	idx := make(map[string]int, len(sortedKeys))
	for i, k := range sortedKeys {
		idx[k] = i
	}

	final := make(grid.Grid, len(sortedKeys))
	for _, rowKey := range sortedKeys {
		row := make([]rune, len(sortedKeys))
		for i := range row {
			row[i] = rune(grid.PlaceholderChar)
		}
		row[idx[rowKey]] = rune(grid.DiagonalChar)

		if compressedRow, ok := g[rowKey]; ok {
			decompressed := []rune(grid.Decompress(compressedRow))
			// Without the row's own original key order we can only reuse
			// a row whose length already matches: anything narrower or
			// wider than sortedKeys can't be safely remapped here, and
			// the caller (update/remove paths) remaps explicitly instead.
			if len(decompressed) == len(sortedKeys) {
				for i, ch := range decompressed {
					if i != idx[rowKey] {
						row[i] = ch
					}
				}
			}
		}
		final[rowKey] = grid.Compress(string(row))
	}
	return final
}

func SortedKeyList(keyMap keys.KeyMap) []string {
	list := make([]string, 0, len(keyMap))
	for k := range keyMap {
		list = append(list, k)
	}
	return keys.Sort(list)
}

// Backup copies trackerPath to backupDir/<basename>.<timestamp>.bak and
// prunes all but the 2 most recent backups sharing that basename. A
// missing source file is a no-op, not an error: callers back up
// conditionally, only when a tracker already existed.
func Backup(trackerPath, backupDir string) (string, error) {
	trackerPath = pathutil.Normalize(trackerPath)
	if _, err := os.Stat(trackerPath); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", depterr.NewIOError("stat tracker for backup", trackerPath, err)
	}

	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", depterr.NewIOError("mkdir backups dir", backupDir, err)
	}

	content, err := os.ReadFile(trackerPath)
	if err != nil {
		return "", depterr.NewIOError("read tracker for backup", trackerPath, err)
	}

	baseName := filepath.Base(trackerPath)
	timestamp := time.Now().Format("20060102_150405") + "_" + fmt.Sprintf("%06d", time.Now().Nanosecond()/1000)
	backupName := fmt.Sprintf("%s.%s.bak", baseName, timestamp)
	backupPath := filepath.Join(backupDir, backupName)

	if err := os.WriteFile(backupPath, content, 0o644); err != nil {
		return "", depterr.NewIOError("write tracker backup", backupPath, err)
	}
	log.Printf("tracker: backed up %s to %s", baseName, backupName)

	pruneBackups(backupDir, baseName)
	return backupPath, nil
}

type backupFile struct {
	timestamp time.Time
	path      string
}

func pruneBackups(backupDir, baseName string) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		log.Printf("tracker: could not list backups dir %s: %v", backupDir, err)
		return
	}

	var candidates []backupFile
	prefix := baseName + "."
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".bak") {
			continue
		}
		m := backupNameRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		ts, err := time.Parse("20060102_150405.000000", m[1][:15]+"."+m[1][16:])
		if err != nil {
			log.Printf("tracker: could not parse backup timestamp %q: %v", name, err)
			continue
		}
		candidates = append(candidates, backupFile{timestamp: ts, path: filepath.Join(backupDir, name)})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].timestamp.After(candidates[j].timestamp) })

	for _, old := range candidates[minInt(2, len(candidates)):] {
		if err := os.Remove(old.path); err != nil {
			log.Printf("tracker: error deleting old backup %s: %v", old.path, err)
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Merge unions two trackers' key definitions (primary wins on conflict) and
// their grids cell-by-cell (primary wins unless primary's cell is the
// placeholder, in which case secondary's non-placeholder value survives).
func Merge(primary, secondary *Data) *Data {
	mergedKeys := make(keys.KeyMap, len(primary.Keys)+len(secondary.Keys))
	for k, v := range secondary.Keys {
		mergedKeys[k] = v
	}
	for k, v := range primary.Keys {
		mergedKeys[k] = v
	}
	mergedKeyList := SortedKeyList(mergedKeys)
	idx := make(map[string]int, len(mergedKeyList))
	for i, k := range mergedKeyList {
		idx[k] = i
	}

	primaryDecomp := decompressGrid(primary.Grid, SortedKeyList(primary.Keys))
	secondaryDecomp := decompressGrid(secondary.Grid, SortedKeyList(secondary.Keys))

	mergedGrid := grid.NewInitial(mergedKeyList)
	mergedDecomp := make(map[string][]rune, len(mergedKeyList))
	for _, rowKey := range mergedKeyList {
		row := []rune(grid.Decompress(mergedGrid[rowKey]))
		mergedDecomp[rowKey] = row
	}

	for _, rowKey := range mergedKeyList {
		rowIdx := idx[rowKey]
		for _, colKey := range mergedKeyList {
			colIdx := idx[colKey]
			if rowIdx == colIdx {
				continue
			}

			var primaryVal, secondaryVal *rune
			if row, ok := primaryDecomp[rowKey]; ok {
				if ci, ok := row.idx[colKey]; ok && ci < len(row.cells) {
					c := row.cells[ci]
					primaryVal = &c
				}
			}
			if row, ok := secondaryDecomp[rowKey]; ok {
				if ci, ok := row.idx[colKey]; ok && ci < len(row.cells) {
					c := row.cells[ci]
					secondaryVal = &c
				}
			}

			final := rune(grid.PlaceholderChar)
			if primaryVal != nil && *primaryVal != rune(grid.PlaceholderChar) {
				final = *primaryVal
			} else if secondaryVal != nil && *secondaryVal != rune(grid.PlaceholderChar) {
				final = *secondaryVal
			}
			mergedDecomp[rowKey][colIdx] = final
		}
	}

	finalGrid := make(grid.Grid, len(mergedKeyList))
	for _, rowKey := range mergedKeyList {
		finalGrid[rowKey] = grid.Compress(string(mergedDecomp[rowKey]))
	}

	return &Data{Keys: mergedKeys, Grid: finalGrid}
}

type decompressedRow struct {
	cells []rune
	idx   map[string]int
}

func decompressGrid(g grid.Grid, orderedKeys []string) map[string]decompressedRow {
	idx := make(map[string]int, len(orderedKeys))
	for i, k := range orderedKeys {
		idx[k] = i
	}
	out := make(map[string]decompressedRow, len(g))
	for k, compressed := range g {
		if _, ok := idx[k]; !ok {
			continue
		}
		decomp := []rune(grid.Decompress(compressed))
		if len(decomp) != len(orderedKeys) {
			log.Printf("tracker: merge prep skipping row %q: expected length %d, got %d", k, len(orderedKeys), len(decomp))
			continue
		}
		out[k] = decompressedRow{cells: decomp, idx: idx}
	}
	return out
}

// RemoveFile locates the key whose path equals fileToRemove, drops it from
// the key definitions and from every row and column of the grid, and
// rewrites the tracker. It is a no-op, not an error, when fileToRemove is
// not present.
func RemoveFile(trackerPath, fileToRemove, backupDir string) error {
	trackerPath = pathutil.Normalize(trackerPath)
	fileToRemove = pathutil.Normalize(fileToRemove)

	data, err := Read(trackerPath)
	if err != nil {
		return err
	}
	if len(data.Keys) == 0 {
		return depterr.NewIOError("remove file from tracker", trackerPath, os.ErrNotExist)
	}

	var keyToRemove string
	for k, v := range data.Keys {
		if v == fileToRemove {
			keyToRemove = k
			break
		}
	}
	if keyToRemove == "" {
		log.Printf("tracker: file %q not found in tracker %s, no changes made", fileToRemove, trackerPath)
		return nil
	}

	if _, err := Backup(trackerPath, backupDir); err != nil {
		return err
	}

	oldKeyList := SortedKeyList(data.Keys)
	removedIdx := -1
	for i, k := range oldKeyList {
		if k == keyToRemove {
			removedIdx = i
			break
		}
	}

	finalKeys := make(keys.KeyMap, len(data.Keys)-1)
	for k, v := range data.Keys {
		if k != keyToRemove {
			finalKeys[k] = v
		}
	}
	finalKeyList := SortedKeyList(finalKeys)

	finalGrid := make(grid.Grid, len(finalKeyList))
	for rowKey, compressedRow := range data.Grid {
		if rowKey == keyToRemove {
			continue
		}
		decomp := []rune(grid.Decompress(compressedRow))
		if removedIdx >= 0 && len(decomp) == len(oldKeyList) {
			newRow := append(append([]rune{}, decomp[:removedIdx]...), decomp[removedIdx+1:]...)
			finalGrid[rowKey] = grid.Compress(string(newRow))
		} else {
			log.Printf("tracker: removal row length mismatch for %q in %s, re-initializing", rowKey, trackerPath)
			finalGrid[rowKey] = grid.NewInitial(finalKeyList)[rowKey]
		}
	}

	lastKeyEdit := fmt.Sprintf("Removed key: %s (%s)", keyToRemove, filepath.Base(fileToRemove))
	lastGridEdit := fmt.Sprintf("Grid adjusted for removal of key: %s", keyToRemove)

	if err := Write(trackerPath, finalKeys, finalGrid, lastKeyEdit, lastGridEdit); err != nil {
		return fmt.Errorf("writing tracker after removing %s: %w", keyToRemove, err)
	}
	log.Printf("tracker: removed key %s and file %s from %s", keyToRemove, fileToRemove, trackerPath)
	return nil
}

// EdgeSuggestion is one proposed grid cell: the target key and the
// character to apply, prior to reconciliation against the existing grid.
type EdgeSuggestion struct {
	SourceKey string
	TargetKey string
	Char      byte
}

// UpdateResult reports whether Update changed anything worth flagging to
// the caller: a structural change to the key set, or at least one
// suggestion actually applied.
type UpdateResult struct {
	Created            bool
	KeysAdded          []string
	KeysRemoved        []string
	SuggestionsApplied int
	Conflicts          int
}

// Update implements the tracker update algorithm: read the existing
// tracker (or start from an empty one), rebuild the grid
// to relevantKeys (carrying over cells whose endpoints survive, fresh
// cells default to the placeholder), apply suggestions only where the
// current cell is still the placeholder (logging conflicts otherwise), and
// write the result with updated last_KEY_edit/last_GRID_edit metadata.
func Update(trackerPath string, relevantKeys []string, keyMap keys.KeyMap, suggestions []EdgeSuggestion, newKeys []string, backupDir string) (*UpdateResult, error) {
	trackerPath = pathutil.Normalize(trackerPath)
	result := &UpdateResult{}

	existing, err := Read(trackerPath)
	if err != nil {
		return nil, err
	}
	trackerExisted := len(existing.Keys) > 0 || len(existing.Grid) > 0
	if trackerExisted {
		if _, err := Backup(trackerPath, backupDir); err != nil {
			return nil, err
		}
	} else {
		result.Created = true
	}

	finalKeys := make(keys.KeyMap, len(relevantKeys))
	for _, k := range relevantKeys {
		if p, ok := keyMap[k]; ok {
			finalKeys[k] = p
		}
	}
	finalKeyList := SortedKeyList(finalKeys)
	finalIdx := make(map[string]int, len(finalKeyList))
	for i, k := range finalKeyList {
		finalIdx[k] = i
	}

	existingKeySet := make(map[string]bool, len(existing.Keys))
	for k := range existing.Keys {
		existingKeySet[k] = true
	}
	finalKeySet := make(map[string]bool, len(finalKeyList))
	for _, k := range finalKeyList {
		finalKeySet[k] = true
		if !existingKeySet[k] {
			result.KeysAdded = append(result.KeysAdded, k)
		}
	}
	for k := range existingKeySet {
		if !finalKeySet[k] {
			result.KeysRemoved = append(result.KeysRemoved, k)
		}
	}

	relevantNewKeys := intersectSorted(newKeys, finalKeySet)

	oldKeyList := SortedKeyList(existing.Keys)
	oldIdx := make(map[string]int, len(oldKeyList))
	for i, k := range oldKeyList {
		oldIdx[k] = i
	}

	decomp := make(map[string][]rune, len(finalKeyList))
	for _, rowKey := range finalKeyList {
		row := make([]rune, len(finalKeyList))
		for i := range row {
			row[i] = rune(grid.PlaceholderChar)
		}
		row[finalIdx[rowKey]] = rune(grid.DiagonalChar)
		decomp[rowKey] = row
	}

	for oldRowKey, compressedRow := range existing.Grid {
		newRowIdx, keptRow := finalIdx[oldRowKey]
		if !keptRow {
			continue
		}
		oldDecomp := []rune(grid.Decompress(compressedRow))
		if len(oldDecomp) != len(oldKeyList) {
			log.Printf("tracker: grid rebuild row length mismatch for %q in %s, skipping values", oldRowKey, trackerPath)
			continue
		}
		for oldColIdx, value := range oldDecomp {
			if oldColIdx >= len(oldKeyList) {
				break
			}
			oldColKey := oldKeyList[oldColIdx]
			newColIdx, keptCol := finalIdx[oldColKey]
			if !keptCol || newColIdx == newRowIdx {
				continue
			}
			decomp[oldRowKey][newColIdx] = value
		}
	}

	for _, s := range suggestions {
		_, rowOK := finalIdx[s.SourceKey]
		colIdx, colOK := finalIdx[s.TargetKey]
		if !rowOK || !colOK || s.SourceKey == s.TargetKey {
			continue
		}
		row := decomp[s.SourceKey]
		existingChar := row[colIdx]
		switch {
		case existingChar == rune(grid.PlaceholderChar) && rune(s.Char) != rune(grid.PlaceholderChar):
			row[colIdx] = rune(s.Char)
			result.SuggestionsApplied++
		case existingChar != rune(grid.PlaceholderChar) && existingChar != rune(grid.DiagonalChar) && existingChar != rune(s.Char):
			log.Printf("tracker: suggestion conflict in %s: for %s->%s grid has %q, suggestion is %q, grid value kept",
				filepath.Base(trackerPath), s.SourceKey, s.TargetKey, existingChar, rune(s.Char))
			result.Conflicts++
		}
	}

	finalGrid := make(grid.Grid, len(finalKeyList))
	for _, rowKey := range finalKeyList {
		finalGrid[rowKey] = grid.Compress(string(decomp[rowKey]))
	}

	lastKeyEdit := existing.LastKeyEdit
	switch {
	case len(relevantNewKeys) > 0:
		lastKeyEdit = "Assigned keys: " + strings.Join(relevantNewKeys, ", ")
	case len(result.KeysAdded) > 0 || len(result.KeysRemoved) > 0:
		var parts []string
		if len(result.KeysAdded) > 0 {
			parts = append(parts, fmt.Sprintf("Added %d keys", len(result.KeysAdded)))
		}
		if len(result.KeysRemoved) > 0 {
			parts = append(parts, fmt.Sprintf("Removed %d keys", len(result.KeysRemoved)))
		}
		lastKeyEdit = "Keys updated: " + strings.Join(parts, "; ")
	case !trackerExisted:
		lastKeyEdit = "Initial creation"
	}

	lastGridEdit := existing.LastGridEdit
	switch {
	case result.SuggestionsApplied > 0:
		lastGridEdit = "Applied suggestions (" + time.Now().Format(time.RFC3339) + ")"
	case len(result.KeysAdded) > 0 || len(result.KeysRemoved) > 0:
		lastGridEdit = "Grid structure updated (" + time.Now().Format(time.RFC3339) + ")"
	case !trackerExisted:
		lastGridEdit = "Initial creation"
	}

	if err := Write(trackerPath, finalKeys, finalGrid, lastKeyEdit, lastGridEdit); err != nil {
		return nil, err
	}
	return result, nil
}

func intersectSorted(candidates []string, allowed map[string]bool) []string {
	var out []string
	for _, k := range candidates {
		if allowed[k] {
			out = append(out, k)
		}
	}
	return keys.Sort(out)
}

// CreateMini writes a new mini tracker wrapping its key-definitions/grid
// section between MiniMarkerStart/MiniMarkerEnd, so a later Update call can
// preserve any template content the caller writes outside those markers.
func CreateMini(trackerPath, moduleName string, relevantKeys []string, keyMap keys.KeyMap, newKeys []string) error {
	sortedKeys := keys.Sort(relevantKeys)
	finalKeys := make(keys.KeyMap, len(sortedKeys))
	for _, k := range sortedKeys {
		if p, ok := keyMap[k]; ok {
			finalKeys[k] = p
		}
	}

	if err := os.MkdirAll(filepath.Dir(trackerPath), 0o755); err != nil {
		return depterr.NewIOError("mkdir mini tracker dir", filepath.Dir(trackerPath), err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s Module Dependencies\n\n", moduleName)
	b.WriteString(MiniMarkerStart + "\n\n")
	b.WriteString("---KEY_DEFINITIONS_START---\n")
	b.WriteString("Key Definitions:\n")
	for _, k := range sortedKeys {
		fmt.Fprintf(&b, "%s: %s\n", k, pathutil.Normalize(finalKeys[k]))
	}
	b.WriteString("---KEY_DEFINITIONS_END---\n\n")

	lastKeyEdit := "Initial creation"
	if len(newKeys) > 0 {
		lastKeyEdit = "Assigned keys: " + strings.Join(newKeys, ", ")
	}
	fmt.Fprintf(&b, "last_KEY_edit: %s\n", lastKeyEdit)
	b.WriteString("last_GRID_edit: Initial creation\n\n")

	b.WriteString("---GRID_START---\n")
	initial := grid.NewInitial(sortedKeys)
	if len(sortedKeys) > 0 {
		fmt.Fprintf(&b, "X %s\n", strings.Join(sortedKeys, " "))
		for _, k := range sortedKeys {
			fmt.Fprintf(&b, "%s = %s\n", k, initial[k])
		}
	} else {
		b.WriteString("X \n")
	}
	b.WriteString("---GRID_END---\n\n")
	b.WriteString(MiniMarkerEnd + "\n")

	if err := os.WriteFile(trackerPath, []byte(b.String()), 0o644); err != nil {
		return depterr.NewIOError("write mini tracker", trackerPath, err)
	}
	log.Printf("tracker: created mini tracker %s", trackerPath)
	return nil
}

// ExportFormat enumerates the formats Export supports.
type ExportFormat string

const (
	FormatMD      ExportFormat = "md"
	FormatJSON    ExportFormat = "json"
	FormatCSV     ExportFormat = "csv"
	FormatDOT     ExportFormat = "dot"
	FormatMermaid ExportFormat = "mermaid"
	FormatSummary ExportFormat = "summary"
)

// Export renders a tracker file into one of the supported formats and
// writes it to outputPath.
func Export(trackerPath string, format ExportFormat, outputPath string) error {
	trackerPath = pathutil.Normalize(trackerPath)
	data, err := Read(trackerPath)
	if err != nil {
		return err
	}
	if len(data.Keys) == 0 {
		return fmt.Errorf("cannot export empty or unreadable tracker: %s", trackerPath)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return depterr.NewIOError("mkdir export dir", filepath.Dir(outputPath), err)
	}

	sortedKeys := SortedKeyList(data.Keys)

	var out string
	switch format {
	case FormatMD:
		content, err := os.ReadFile(trackerPath)
		if err != nil {
			return depterr.NewIOError("read tracker for md export", trackerPath, err)
		}
		return os.WriteFile(outputPath, content, 0o644)
	case FormatJSON:
		out, err = exportJSON(data)
	case FormatCSV:
		out = exportCSV(data, sortedKeys)
	case FormatDOT:
		out = exportDOT(data, sortedKeys)
	case FormatMermaid:
		out, err = export.Mermaid(data.Keys, data.Grid)
	case FormatSummary:
		out, err = export.Summary(data.Keys, data.Grid)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, []byte(out), 0o644); err != nil {
		return depterr.NewIOError("write export", outputPath, err)
	}
	log.Printf("tracker: exported %s to %s (%s)", trackerPath, outputPath, format)
	return nil
}

func exportJSON(data *Data) (string, error) {
	payload := struct {
		Keys         keys.KeyMap `json:"keys"`
		Grid         grid.Grid   `json:"grid"`
		LastKeyEdit  string      `json:"last_key_edit"`
		LastGridEdit string      `json:"last_grid_edit"`
	}{data.Keys, data.Grid, data.LastKeyEdit, data.LastGridEdit}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// isReportableChar classifies a cell as a reportable edge: not empty,
// diagonal, or placeholder.
func isReportableChar(ch rune) bool {
	return ch != rune(grid.EmptyChar) && ch != rune(grid.DiagonalChar) && ch != rune(grid.PlaceholderChar)
}

// ForEachEdge walks every reportable (non-empty, non-diagonal,
// non-placeholder) cell of data's grid in sortedKeys row/column order,
// calling fn once per edge. Used by this package's CSV and DOT exporters;
// internal/export, which this package imports, walks the grid with its own
// forEachEdge.
func ForEachEdge(data *Data, sortedKeys []string, fn func(sourceKey, targetKey string, ch rune)) {
	for _, sourceKey := range sortedKeys {
		compressedRow, ok := data.Grid[sourceKey]
		if !ok {
			continue
		}
		decompressed := []rune(grid.Decompress(compressedRow))
		if len(decompressed) != len(sortedKeys) {
			log.Printf("tracker: export row length mismatch for key %q", sourceKey)
			continue
		}
		for j, ch := range decompressed {
			if isReportableChar(ch) {
				fn(sourceKey, sortedKeys[j], ch)
			}
		}
	}
}

func exportCSV(data *Data, sortedKeys []string) string {
	var b strings.Builder
	b.WriteString("Source Key,Source Path,Target Key,Target Path,Dependency Type\n")
	ForEachEdge(data, sortedKeys, func(sourceKey, targetKey string, ch rune) {
		fmt.Fprintf(&b, "%s,%s,%s,%s,%c\n", sourceKey, csvEscape(data.Keys[sourceKey]), targetKey, csvEscape(data.Keys[targetKey]), ch)
	})
	return b.String()
}

func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func exportDOT(data *Data, sortedKeys []string) string {
	var b strings.Builder
	b.WriteString("digraph Dependencies {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString(`  node [shape=box, style="filled", fillcolor="#EFEFEF", fontname="Arial"];` + "\n")
	b.WriteString(`  edge [fontsize=10, fontname="Arial"];` + "\n\n")

	for _, k := range sortedKeys {
		label := strings.ReplaceAll(strings.ReplaceAll(filepath.Base(data.Keys[k]), `\`, "/"), `"`, `\"`)
		fmt.Fprintf(&b, "  %q [label=%q];\n", k, k+"\\n"+label)
	}
	b.WriteString("\n")

	ForEachEdge(data, sortedKeys, func(sourceKey, targetKey string, ch rune) {
		color, style, arrowhead := "black", "solid", "normal"
		switch ch {
		case '>':
			color = "blue"
		case '<':
			color, arrowhead = "green", "oinv"
		case 'x':
			color, style, arrowhead = "red", "dashed", "odot"
		case 'd':
			color = "orange"
		case 's':
			color, style = "grey", "dotted"
		case 'S':
			color, style = "dimgrey", "bold"
		}
		fmt.Fprintf(&b, "  %q -> %q [label=%q, color=%q, style=%q, arrowhead=%q];\n",
			sourceKey, targetKey, string(ch), color, style, arrowhead)
	})
	b.WriteString("}\n")
	return b.String()
}

// Mermaid and Summary exports are implemented in internal/export, which
// operates on the same KeyMap/Grid pair Data wraps so it does not need to
// import this package (see Export's FormatMermaid/FormatSummary cases).
