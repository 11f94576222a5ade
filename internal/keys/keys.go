// Package keys implements hierarchical key assignment for the directories
// and files under a project's code roots, and the natural sort order those
// keys require.
package keys

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/standardbeagle/deptrack/internal/config"
	"github.com/standardbeagle/deptrack/internal/depterr"
	"github.com/standardbeagle/deptrack/internal/pathutil"
)

// HierarchicalKeyPattern matches a well-formed key: a tier digit run, an
// uppercase root letter, an optional digit run (a file directly under the
// root, e.g. "1A1"), then lowercase-letter segments each optionally
// followed by a digit run.
var HierarchicalKeyPattern = regexp.MustCompile(`^[0-9]+[A-Z][0-9]*([a-z][0-9]*)*$`)

// keyPartPattern splits a key into its numeric and non-numeric runs for
// natural sorting (e.g. "2Ab10" -> ["2", "A", "b", "10"]).
var keyPartPattern = regexp.MustCompile(`[0-9]+|[A-Za-z]+`)

// KeyMap maps an assigned hierarchical key to its normalized absolute path.
type KeyMap map[string]string

// Result is the output of Generate: the full key map, the keys assigned by
// this call, and the root-letter assignment so callers can report `1A` style
// root labels in CLI output. Generate starts from an empty key map and is
// not given an earlier scan's keys, so NewKeys lists every key it returns,
// including on a rescan of an unchanged tree.
type Result struct {
	KeyMap   KeyMap
	NewKeys  []string
	RootKeys map[string]string // normalized root path -> its "1<Letter>" key
}

// Generate assigns hierarchical keys to every non-excluded file and
// directory under rootPaths.
//
// Exclusions are applied before recursion: any path in cfg's resolved
// excluded-paths set, any basename in cfg.ExcludedDirs, any file matching
// "*_module.md" (reserved for mini trackers), any file with an excluded
// extension, any dotfile, and ".gitkeep".
func Generate(rootPaths []string, cfg *config.Config) (*Result, error) {
	excludedDirNames := make(map[string]bool, len(cfg.ExcludedDirs))
	for _, d := range cfg.ExcludedDirs {
		excludedDirNames[d] = true
	}
	excludedExt := make(map[string]bool, len(cfg.ExcludedExtensions))
	for _, e := range cfg.ExcludedExtensions {
		excludedExt[strings.ToLower(e)] = true
	}

	for _, root := range rootPaths {
		if _, err := os.Stat(root); err != nil {
			return nil, depterr.NewIOError("stat root", root, err)
		}
	}

	g := &generator{
		cfg:           cfg,
		excludedDirs:  excludedDirNames,
		excludedExt:   excludedExt,
		keyMap:        make(KeyMap),
		rootKeys:      make(map[string]string),
		dirLetterSeen: make(map[string]string),
	}

	for _, root := range rootPaths {
		if g.isExcludedPath(root) {
			continue
		}
		if err := g.processRoot(root); err != nil {
			return nil, err
		}
	}

	return &Result{KeyMap: g.keyMap, NewKeys: g.newKeys, RootKeys: g.rootKeys}, nil
}

type generator struct {
	cfg          *config.Config
	excludedDirs map[string]bool
	excludedExt  map[string]bool

	keyMap        KeyMap
	newKeys       []string
	rootKeys      map[string]string
	dirLetterSeen map[string]string // normalized root path -> assigned letter
}

func (g *generator) isExcludedPath(path string) bool {
	return g.cfg.IsExcludedPath(pathutil.Normalize(path))
}

func (g *generator) assign(key, normPath string) {
	if _, ok := g.keyMap[key]; ok {
		// Deterministic input always yields a deterministic key space; a
		// collision here means the walk revisited a path, which is a
		// programmer error rather than a data condition to recover from.
		panic(fmt.Sprintf("keys: duplicate key assignment %q for %q (already %q)", key, normPath, g.keyMap[key]))
	}
	g.keyMap[key] = normPath
	g.newKeys = append(g.newKeys, key)
}

func (g *generator) processRoot(rootPath string) error {
	normRoot := pathutil.Normalize(rootPath)
	letter := string(rune('A' + len(g.dirLetterSeen)))
	g.dirLetterSeen[normRoot] = letter

	rootKey := fmt.Sprintf("1%s", letter)
	if _, ok := g.keyMap[rootKey]; !ok {
		g.assign(rootKey, normRoot)
	}
	g.rootKeys[normRoot] = rootKey

	return g.processDirectory(rootPath, rootKey, 1)
}

// processDirectory recursively assigns keys to dirPath's children under
// parentKey at the given tier.
func (g *generator) processDirectory(dirPath, parentKey string, tier int) error {
	items, err := os.ReadDir(dirPath)
	if err != nil {
		// Unreadable directories are logged and skipped, not fatal.
		log.Printf("keys: skipping unreadable directory %s: %v", dirPath, err)
		return nil
	}

	names := make([]string, 0, len(items))
	byName := make(map[string]os.DirEntry, len(items))
	for _, item := range items {
		names = append(names, item.Name())
		byName[item.Name()] = item
	}
	sort.Strings(names) // case-sensitive lexical order

	fileCount := 1
	subdirCount := 0

	for _, name := range names {
		item := byName[name]
		itemPath := filepath.Join(dirPath, name)
		normItemPath := pathutil.Normalize(itemPath)

		if g.shouldSkip(name, item, normItemPath) {
			continue
		}

		if item.IsDir() {
			letter := string(rune('a' + subdirCount))
			subdirKey := fmt.Sprintf("%d%s%s", tier+1, parentKey[1:], letter)
			if _, ok := g.keyMap[subdirKey]; !ok {
				g.assign(subdirKey, normItemPath)
			}
			subdirCount++
			if err := g.processDirectory(itemPath, subdirKey, tier+1); err != nil {
				return err
			}
			continue
		}

		fileKey := fmt.Sprintf("%s%d", parentKey, fileCount)
		if _, ok := g.keyMap[fileKey]; !ok {
			g.assign(fileKey, normItemPath)
		}
		fileCount++
	}

	return nil
}

func (g *generator) shouldSkip(name string, item os.DirEntry, normItemPath string) bool {
	if g.isExcludedPath(normItemPath) {
		return true
	}
	if g.excludedDirs[name] {
		return true
	}
	if name == ".gitkeep" {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	if !item.IsDir() {
		if strings.HasSuffix(name, "_module.md") {
			return true
		}
		ext := strings.ToLower(filepath.Ext(name))
		if g.excludedExt[ext] {
			return true
		}
	}
	return false
}

// Validate reports whether key is a well-formed hierarchical key.
func Validate(key string) bool {
	return HierarchicalKeyPattern.MatchString(key)
}

// PathFor returns the path associated with key, or "" if absent.
func PathFor(key string, km KeyMap) string {
	return km[key]
}

// KeyFor returns the key associated with path, or "" if absent. Linear in
// the size of km; callers that need this repeatedly should build their own
// reverse index.
func KeyFor(path string, km KeyMap) string {
	norm := pathutil.Normalize(path)
	for k, v := range km {
		if v == norm {
			return k
		}
	}
	return ""
}

// ParentOf returns the key of the directory key's parent module, or "" if
// key is a root key (tier digit + uppercase letter, no parent) or a
// malformed key. A directory key is its parent's key with one more
// lowercase letter appended and its leading tier digit incremented
// (processDirectory); ParentOf reverses that: drop the trailing letter,
// decrement the tier. File keys (trailing digit run, no tier change) have
// no meaning here and are not handled — callers first strip a file's
// trailing digits to its owning directory key.
func ParentOf(key string) string {
	if len(key) == 0 {
		return ""
	}
	last := key[len(key)-1]
	if last < 'a' || last > 'z' {
		return ""
	}
	rest := key[:len(key)-1]
	j := 0
	for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
		j++
	}
	if j == 0 || j == len(rest) {
		return ""
	}
	tier, err := strconv.Atoi(rest[:j])
	if err != nil || tier <= 1 {
		return ""
	}
	return strconv.Itoa(tier-1) + rest[j:]
}

// ModuleKeyFor returns the key of the directory owning fileKey: fileKey
// minus its trailing numeric counter segment. Returns fileKey itself if it
// has no trailing digit run (already a directory key).
func ModuleKeyFor(fileKey string) string {
	if fileKey == "" {
		return ""
	}
	i := len(fileKey)
	for i > 0 && fileKey[i-1] >= '0' && fileKey[i-1] <= '9' {
		i--
	}
	if i == 0 || i == len(fileKey) {
		return fileKey
	}
	return fileKey[:i]
}

// Sort orders keys using natural tier/letter/digit comparison: numeric
// runs compare as integers, non-numeric runs compare lexically.
func Sort(keysList []string) []string {
	out := make([]string, len(keysList))
	copy(out, keysList)
	sort.Slice(out, func(i, j int) bool {
		return lessNatural(out[i], out[j])
	})
	return out
}

func lessNatural(a, b string) bool {
	pa := keyPartPattern.FindAllString(a, -1)
	pb := keyPartPattern.FindAllString(b, -1)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		if errA == nil && errB == nil {
			if na != nb {
				return na < nb
			}
			continue
		}
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return len(pa) < len(pb)
}
