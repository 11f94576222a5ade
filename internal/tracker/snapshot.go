package tracker

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/standardbeagle/deptrack/internal/depterr"
	"github.com/standardbeagle/deptrack/internal/grid"
	"github.com/standardbeagle/deptrack/internal/keys"
)

// Snapshot is a point-in-time capture of a tracker's key set and grid.
// DiffSnapshots below returns a typed result rather than diffing untyped
// JSON.
type Snapshot struct {
	TrackerPath string      `json:"tracker_path"`
	Keys        keys.KeyMap `json:"keys"`
	Grid        grid.Grid   `json:"grid"`
	StateHash   string      `json:"state_hash"`
}

// NewSnapshot captures trackerPath's current on-disk state. A missing
// tracker yields an empty snapshot, matching Read's own convention.
func NewSnapshot(trackerPath string) (*Snapshot, error) {
	data, err := Read(trackerPath)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		TrackerPath: trackerPath,
		Keys:        data.Keys,
		Grid:        data.Grid,
		StateHash:   stateHash(data.Keys, data.Grid),
	}, nil
}

// stateHash fingerprints a key map and grid deterministically, so two
// snapshots of an unchanged tracker compare equal without a full diff.
func stateHash(km keys.KeyMap, g grid.Grid) string {
	sortedKeys := SortedKeyList(km)
	h := md5.New()
	for _, k := range sortedKeys {
		fmt.Fprintf(h, "%s:%s|%s\n", k, km[k], g[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SaveSnapshot writes snap as indented JSON to <snapshotDir>/<name>.json.
func SaveSnapshot(snap *Snapshot, snapshotDir, name string) (string, error) {
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		return "", depterr.NewIOError("mkdir snapshot dir", snapshotDir, err)
	}
	path := filepath.Join(snapshotDir, name+".json")
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", depterr.NewIOError("write snapshot", path, err)
	}
	return path, nil
}

// LoadSnapshot reads a snapshot previously written by SaveSnapshot.
func LoadSnapshot(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, depterr.NewIOError("read snapshot", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, depterr.NewParseError(path, 0, "invalid snapshot JSON", err)
	}
	return &snap, nil
}

// CellChange is one (source, target) cell whose character differs between
// two snapshots.
type CellChange struct {
	SourceKey string `json:"source_key"`
	TargetKey string `json:"target_key"`
	Old       byte   `json:"old"`
	New       byte   `json:"new"`
}

// Diff is the result of comparing two snapshots of the same tracker.
type Diff struct {
	Added   []string     `json:"added"`
	Removed []string     `json:"removed"`
	Changed []CellChange `json:"changed"`
}

// DiffSnapshots compares before and after, reporting keys added or removed
// and cells whose character changed for keys present in both.
func DiffSnapshots(before, after *Snapshot) *Diff {
	diff := &Diff{}

	beforeKeys := make(map[string]bool, len(before.Keys))
	for k := range before.Keys {
		beforeKeys[k] = true
	}
	afterKeys := make(map[string]bool, len(after.Keys))
	for k := range after.Keys {
		afterKeys[k] = true
	}

	for k := range afterKeys {
		if !beforeKeys[k] {
			diff.Added = append(diff.Added, k)
		}
	}
	for k := range beforeKeys {
		if !afterKeys[k] {
			diff.Removed = append(diff.Removed, k)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)

	var common []string
	for k := range beforeKeys {
		if afterKeys[k] {
			common = append(common, k)
		}
	}
	common = keys.Sort(common)

	for _, srcKey := range common {
		beforeRow := []rune(grid.Decompress(before.Grid[srcKey]))
		afterRow := []rune(grid.Decompress(after.Grid[srcKey]))
		for _, tgtKey := range common {
			oldCh := rowChar(beforeRow, before.Keys, srcKey, tgtKey)
			newCh := rowChar(afterRow, after.Keys, srcKey, tgtKey)
			if oldCh != newCh {
				diff.Changed = append(diff.Changed, CellChange{
					SourceKey: srcKey, TargetKey: tgtKey,
					Old: byte(oldCh), New: byte(newCh),
				})
			}
		}
	}
	return diff
}

// rowChar returns the character decompressedRow holds at tgtKey's index
// within km's own sorted key order, or the placeholder character if
// decompressedRow does not cover that index (e.g. the row is from a
// snapshot predating tgtKey's assignment).
func rowChar(decompressedRow []rune, km keys.KeyMap, srcKey, tgtKey string) rune {
	sortedKeys := SortedKeyList(km)
	idx := -1
	for i, k := range sortedKeys {
		if k == tgtKey {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(decompressedRow) {
		return grid.PlaceholderChar
	}
	return decompressedRow[idx]
}
