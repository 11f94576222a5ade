// Package orchestrator implements the project orchestrator: the
// end-to-end pipeline that enumerates a project's files, assigns keys,
// analyzes and embeds each file, derives suggested dependencies,
// reconciles them into the doc and mini trackers, and rolls cross-module
// edges up into the main tracker.
//
// The worker pool follows the familiar task/result-channel shape of a
// runtime.NumCPU()-sized indexing pipeline, built here on
// golang.org/x/sync/errgroup rather than hand-rolled channels — errgroup
// is the ecosystem's idiomatic bounded-concurrency primitive for exactly
// this "fan out over a slice, collect errors" shape.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/deptrack/internal/analyzer"
	"github.com/standardbeagle/deptrack/internal/cachelayer"
	"github.com/standardbeagle/deptrack/internal/config"
	"github.com/standardbeagle/deptrack/internal/embeddings"
	"github.com/standardbeagle/deptrack/internal/grid"
	"github.com/standardbeagle/deptrack/internal/keys"
	"github.com/standardbeagle/deptrack/internal/pathutil"
	"github.com/standardbeagle/deptrack/internal/security"
	"github.com/standardbeagle/deptrack/internal/suggest"
	"github.com/standardbeagle/deptrack/internal/tracker"
)

// maxWorkers bounds the pool at min(32, 2 x logical cores).
func maxWorkers() int {
	n := 2 * runtime.NumCPU()
	if n > 32 {
		n = 32
	}
	if n < 1 {
		n = 1
	}
	return n
}

// batchSize adapts to input size: quarters under 100 items, tenths under
// 1000, twentieths beyond that.
func batchSize(n int) int {
	switch {
	case n < 100:
		return max(1, n/4)
	case n < 1000:
		return max(1, n/10)
	default:
		return max(1, n/20)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// fileRecord bundles one file's static analysis, embedding vector, and the
// bookkeeping needed to resolve its import/link targets to keys later.
type fileRecord struct {
	path     string // absolute, normalized
	relPath  string
	key      string
	modKey   string // key of the innermost code-root subdirectory owning this file
	analysis *analyzer.Record
	vector   embeddings.Vector
}

// Orchestrator runs the end-to-end analysis pipeline over one project
// root.
type Orchestrator struct {
	Config      *config.Config
	Cache       *cachelayer.Store
	Embedder    embeddings.Encoder
	Validator   *security.FileValidator
	ProjectRoot string
}

// largeFileThresholdKB bounds how much of a file analyzeOne reads in full:
// anything past it is header-checked first (see security.FileValidator).
const largeFileThresholdKB = 512

// New builds an Orchestrator for projectRoot using cfg. A nil encoder
// defaults to embeddings.NewHashEncoder(0).
func New(projectRoot string, cfg *config.Config, encoder embeddings.Encoder) *Orchestrator {
	if encoder == nil {
		encoder = embeddings.NewHashEncoder(0)
	}
	return &Orchestrator{
		Config:      cfg,
		Cache:       cachelayer.NewStore(cachelayer.DefaultCapacity),
		Validator:   security.NewFileValidator(largeFileThresholdKB),
		Embedder:    encoder,
		ProjectRoot: pathutil.Normalize(projectRoot),
	}
}

// Report summarizes one pipeline run for CLI/log output.
type Report struct {
	FilesScanned    int
	NewKeys         int
	SuggestionsMade int
	TrackersWritten []string
	Duration        time.Duration
}

// Run executes the full pipeline, steps 1-9 below.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	// Step 1-2: enumerate roots and assign keys.
	rootPaths := o.rootPaths()
	keyResult, err := keys.Generate(rootPaths, o.Config)
	if err != nil {
		return nil, fmt.Errorf("generating keys: %w", err)
	}
	report.NewKeys = len(keyResult.NewKeys)

	files := sortedFilePaths(keyResult.KeyMap)
	report.FilesScanned = len(files)

	// Step 3: analyze in parallel, adaptive-batch worker pool.
	records, err := o.analyzeAll(ctx, files, keyResult.KeyMap)
	if err != nil {
		return nil, fmt.Errorf("analyzing files: %w", err)
	}

	// Step 4: embeddings.
	embeddingsDir := filepath.Join(o.ProjectRoot, o.Config.Paths.EmbeddingsDir)
	mgr := embeddings.NewManager(embeddingsDir, o.Embedder)
	if err := o.embedAll(ctx, records, mgr); err != nil {
		return nil, fmt.Errorf("embedding files: %w", err)
	}

	// Step 5-6: suggestions plus reciprocal edges.
	suggestions := o.suggestAll(records, keyResult.KeyMap)
	for _, v := range suggestions {
		report.SuggestionsMade += len(v)
	}

	fileToModule := make(map[string]string, len(records))
	for _, r := range records {
		fileToModule[r.key] = r.modKey
	}

	// Step 7: update doc and mini trackers.
	written, err := o.updateDocAndMiniTrackers(records, keyResult.KeyMap, suggestions, keyResult.NewKeys)
	if err != nil {
		return nil, fmt.Errorf("updating doc/mini trackers: %w", err)
	}
	report.TrackersWritten = append(report.TrackersWritten, written...)

	// Step 8-9: aggregate and write the main tracker.
	mainPath, err := o.updateMainTracker(keyResult.KeyMap, records, suggestions, keyResult.NewKeys)
	if err != nil {
		return nil, fmt.Errorf("updating main tracker: %w", err)
	}
	if mainPath != "" {
		report.TrackersWritten = append(report.TrackersWritten, mainPath)
	}

	report.Duration = time.Since(start)
	return report, nil
}

func (o *Orchestrator) rootPaths() []string {
	var roots []string
	for _, r := range o.Config.CodeRootDirectories {
		roots = append(roots, filepath.Join(o.ProjectRoot, r))
	}
	for _, r := range o.Config.DocDirectories {
		roots = append(roots, filepath.Join(o.ProjectRoot, r))
	}
	return roots
}

func sortedFilePaths(km keys.KeyMap) []string {
	type entry struct{ key, path string }
	var entries []entry
	for k, p := range km {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			entries = append(entries, entry{k, p})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out
}

// analyzeAll reads and statically analyzes every file using a bounded
// worker pool, processed in adaptively-sized batches; results are
// collected back in input order regardless of completion order.
func (o *Orchestrator) analyzeAll(ctx context.Context, files []string, km keys.KeyMap) ([]*fileRecord, error) {
	keyOf := make(map[string]string, len(km))
	for k, p := range km {
		keyOf[p] = k
	}

	records := make([]*fileRecord, len(files))
	batch := batchSize(len(files))
	limit := maxWorkers()

	for start := 0; start < len(files); start += batch {
		end := min(start+batch, len(files))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)

		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				rec, err := o.analyzeOne(files[i], keyOf[files[i]])
				if err != nil {
					// A per-file failure is captured in the record, not
					// propagated — one bad file shouldn't abort the run.
					log.Printf("orchestrator: analysis error for %s: %v", files[i], err)
					rec = &fileRecord{path: files[i], key: keyOf[files[i]], analysis: &analyzer.Record{
						FilePath: files[i], Skipped: true, SkipReason: err.Error(),
					}}
				}
				records[i] = rec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	for _, r := range records {
		r.modKey = moduleKeyFor(r.key)
	}
	return records, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (o *Orchestrator) analyzeOne(path, key string) (*fileRecord, error) {
	cacheKey := fmt.Sprintf("%s:%s", cachelayer.FileAnalysis, path)
	if cached, ok := o.Cache.Get(cachelayer.FileAnalysis, cacheKey); ok {
		if rec, ok := cached.(*fileRecord); ok {
			return rec, nil
		}
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, depterrWrap("stat", path, err)
	}
	fileType := analyzer.FileType(path)

	if err := o.Validator.ValidateLargeFile(path); err != nil {
		rec := &fileRecord{
			path:    pathutil.Normalize(path),
			relPath: pathutil.ToRelative(path, o.ProjectRoot),
			key:     key,
			analysis: &analyzer.Record{
				FilePath: path, FileType: fileType, Size: fi.Size(),
				Skipped: true, SkipReason: err.Error(),
			},
		}
		o.Cache.Set(cachelayer.FileAnalysis, cacheKey, rec)
		return rec, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, depterrWrap("read", path, err)
	}

	record := analyzer.Analyze(path, fileType, content, fi.Size())
	record.Skipped = analyzer.IsBinary(content) || !analyzer.IsValidUTF8(content)

	rec := &fileRecord{
		path:     pathutil.Normalize(path),
		relPath:  pathutil.ToRelative(path, o.ProjectRoot),
		key:      key,
		analysis: record,
	}
	o.Cache.Set(cachelayer.FileAnalysis, cacheKey, rec)
	return rec, nil
}

func depterrWrap(op, path string, err error) error {
	return fmt.Errorf("%s %s: %w", op, path, err)
}

// moduleKeyFor returns the key of the directory owning a file key: the
// file key minus its trailing numeric counter segment.
var moduleKeyFor = keys.ModuleKeyFor

func (o *Orchestrator) embedAll(ctx context.Context, records []*fileRecord, mgr *embeddings.Manager) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers())

	for _, r := range records {
		r := r
		if r.analysis == nil || r.analysis.Skipped {
			continue
		}
		if embeddings.IsExcludedForEmbedding(o.Config, r.path, false, true) {
			continue
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			content, err := os.ReadFile(r.path)
			if err != nil {
				log.Printf("orchestrator: embedding read error for %s: %v", r.path, err)
				return nil
			}
			fi, err := os.Stat(r.path)
			if err != nil {
				log.Printf("orchestrator: embedding stat error for %s: %v", r.path, err)
				return nil
			}
			vec, err := mgr.EnsureEmbedding(r.relPath, r.path, fi.ModTime(), string(content))
			if err != nil {
				log.Printf("orchestrator: embedding error for %s: %v", r.path, err)
				return nil
			}
			r.vector = vec
			return nil
		})
	}
	return g.Wait()
}

// edgeMap is a source key -> target key -> combined suggestion.
type edgeMap map[string]map[string]suggest.Suggestion

func (o *Orchestrator) suggestAll(records []*fileRecord, km keys.KeyMap) edgeMap {
	pathToKey := make(map[string]string, len(km))
	for k, p := range km {
		pathToKey[p] = k
	}
	vectors := make(map[string]embeddings.Vector, len(records))
	for _, r := range records {
		if r.vector != nil {
			vectors[r.key] = r.vector
		}
	}

	raw := make(map[string][]suggest.Suggestion, len(records))
	for _, r := range records {
		if r.analysis == nil || r.analysis.Skipped {
			continue
		}
		var sug []suggest.Suggestion
		sug = append(sug, explicitSuggestions(r, pathToKey, o.ProjectRoot)...)
		if vec, ok := vectors[r.key]; ok {
			sug = append(sug, suggest.SemanticSuggestions(r.key, vec, vectors, o.Config.Thresholds)...)
		}
		raw[r.key] = sug
	}

	priorityOf := func(ch byte) int { return o.Config.CharPriorityOf(string(ch)) }

	combined := make(edgeMap, len(raw))
	for src, sug := range raw {
		out := suggest.CombineWithPriority(sug, priorityOf)
		if len(out) == 0 {
			continue
		}
		combined[src] = make(map[string]suggest.Suggestion, len(out))
		for _, s := range out {
			combined[src][s.TargetKey] = s
		}
	}

	// Reciprocal edges (step 6): add the mirrored character into the
	// target's row, merged by the same priority rule.
	additions := make(map[string][]suggest.Suggestion)
	for src, targets := range combined {
		for tgt, s := range targets {
			recipChar := suggest.ReciprocalChar(s.Char)
			additions[tgt] = append(additions[tgt], suggest.Suggestion{TargetKey: src, Char: recipChar})
		}
	}
	for tgt, adds := range additions {
		existing := combined[tgt]
		if existing == nil {
			existing = make(map[string]suggest.Suggestion)
		}
		var merged []suggest.Suggestion
		for _, s := range existing {
			merged = append(merged, s)
		}
		merged = append(merged, adds...)
		out := suggest.CombineWithPriority(merged, priorityOf)
		result := make(map[string]suggest.Suggestion, len(out))
		for _, s := range out {
			result[s.TargetKey] = s
		}
		combined[tgt] = result
	}

	return combined
}

// fuzzyImportThreshold is the minimum Jaro-Winkler similarity a renamed or
// typo'd Python module name must clear against a candidate file's base name
// before the fuzzy fallback links it in.
const fuzzyImportThreshold = 0.88

func explicitSuggestions(r *fileRecord, pathToKey map[string]string, projectRoot string) []suggest.Suggestion {
	var out []suggest.Suggestion
	rec := r.analysis
	sourceDir := filepath.Dir(r.path)

	resolveAndAdd := func(candidatePaths []string, char byte) bool {
		added := false
		for _, cp := range candidatePaths {
			if key, ok := pathToKey[pathutil.Normalize(cp)]; ok && key != r.key {
				out = append(out, suggest.Suggestion{TargetKey: key, Char: char})
				added = true
			}
		}
		return added
	}

	for _, imp := range rec.Imports {
		if rec.FileType == "py" {
			if !resolveAndAdd(suggest.ResolvePythonImport(imp, sourceDir, projectRoot, 0), 'd') {
				if match, ok := suggest.FuzzyResolveImport(imp, pyCandidatePaths(pathToKey, r.path), fuzzyImportThreshold); ok {
					resolveAndAdd([]string{match}, 's')
				}
			}
		} else {
			if p := suggest.ResolveRelativePathImport(imp, sourceDir, true); p != "" {
				resolveAndAdd([]string{p}, 'd')
			}
		}
	}
	for _, link := range rec.Links {
		if p := suggest.ResolveRelativePathImport(link, sourceDir, false); p != "" {
			resolveAndAdd([]string{p}, 'd')
		}
	}
	for _, src := range rec.Scripts {
		if p := suggest.ResolveRelativePathImport(src, sourceDir, false); p != "" {
			resolveAndAdd([]string{p}, 'd')
		}
	}
	for _, href := range rec.Stylesheets {
		if p := suggest.ResolveRelativePathImport(href, sourceDir, false); p != "" {
			resolveAndAdd([]string{p}, 'd')
		}
	}
	return out
}

// pyCandidatePaths lists every known .py path other than selfPath, the
// fuzzy-match pool for an unresolved Python import.
func pyCandidatePaths(pathToKey map[string]string, selfPath string) []string {
	self := pathutil.Normalize(selfPath)
	out := make([]string, 0, len(pathToKey))
	for p := range pathToKey {
		if p != self && strings.HasSuffix(p, ".py") {
			out = append(out, p)
		}
	}
	return out
}

// updateDocAndMiniTrackers writes the doc tracker (files under configured
// doc roots) and one mini tracker per code-root subdirectory.
func (o *Orchestrator) updateDocAndMiniTrackers(records []*fileRecord, km keys.KeyMap, suggestions edgeMap, newKeys []string) ([]string, error) {
	var written []string
	backupDir := filepath.Join(o.ProjectRoot, o.Config.Paths.BackupsDir)

	docRootsAbs := make([]string, 0, len(o.Config.DocDirectories))
	for _, d := range o.Config.DocDirectories {
		docRootsAbs = append(docRootsAbs, pathutil.Normalize(filepath.Join(o.ProjectRoot, d)))
	}

	var docKeys []string
	for _, r := range records {
		for _, root := range docRootsAbs {
			if pathutil.IsSubpath(r.path, root) {
				docKeys = append(docKeys, r.key)
				break
			}
		}
	}
	if len(docKeys) > 0 {
		docPath := filepath.Join(o.ProjectRoot, o.Config.Paths.DocDir, o.Config.Paths.DocTrackerFilename)
		edges := edgeSuggestionsFor(docKeys, suggestions)
		if _, err := tracker.Update(docPath, docKeys, km, edges, newKeys, backupDir); err != nil {
			return written, fmt.Errorf("doc tracker: %w", err)
		}
		written = append(written, docPath)
	}

	// One mini tracker per distinct module directory referenced by any
	// file's key, restricted to code roots (doc files have no mini tracker).
	moduleDirs := make(map[string]bool)
	for _, r := range records {
		if isUnderAnyRoot(r.path, o.Config.CodeRootDirectories, o.ProjectRoot) {
			moduleDirs[r.modKey] = true
		}
	}

	for modKey := range moduleDirs {
		modPath, ok := km[modKey]
		if !ok {
			continue
		}
		relevant := relevantKeysForModule(modKey, km, suggestions, o.Config, modPath)
		if len(relevant) == 0 {
			continue
		}
		miniPath := filepath.Join(modPath, filepath.Base(modPath)+"_module.md")
		edges := edgeSuggestionsFor(relevant, suggestions)
		if _, err := tracker.Update(miniPath, relevant, km, edges, newKeys, backupDir); err != nil {
			return written, fmt.Errorf("mini tracker %s: %w", miniPath, err)
		}
		written = append(written, miniPath)
	}

	sort.Strings(written)
	return written, nil
}

func isUnderAnyRoot(path string, roots []string, projectRoot string) bool {
	for _, r := range roots {
		if pathutil.IsSubpath(path, pathutil.Normalize(filepath.Join(projectRoot, r))) {
			return true
		}
	}
	return false
}

// relevantKeysForModule is the internal-files-plus-cross-module-edge-
// endpoints set for a mini tracker's grid, with excluded paths filtered
// out.
func relevantKeysForModule(modKey string, km keys.KeyMap, suggestions edgeMap, cfg *config.Config, modPath string) []string {
	internal := make(map[string]bool)
	for k, p := range km {
		if pathutil.IsSubpath(p, modPath) && !cfg.IsExcludedPath(p) {
			internal[k] = true
		}
	}

	relevant := make(map[string]bool, len(internal))
	for k := range internal {
		relevant[k] = true
	}

	for src, targets := range suggestions {
		srcPath, srcOK := km[src]
		if !internal[src] {
			continue
		}
		if srcOK && cfg.IsExcludedPath(srcPath) {
			continue
		}
		for tgt, s := range targets {
			if s.Char == grid.PlaceholderChar || s.Char == grid.DiagonalChar {
				continue
			}
			tgtPath, ok := km[tgt]
			if !ok || cfg.IsExcludedPath(tgtPath) {
				continue
			}
			relevant[tgt] = true
		}
	}

	out := make([]string, 0, len(relevant))
	for k := range relevant {
		out = append(out, k)
	}
	return keys.Sort(out)
}

func edgeSuggestionsFor(relevantKeys []string, suggestions edgeMap) []tracker.EdgeSuggestion {
	allowed := make(map[string]bool, len(relevantKeys))
	for _, k := range relevantKeys {
		allowed[k] = true
	}
	var out []tracker.EdgeSuggestion
	for src, targets := range suggestions {
		if !allowed[src] {
			continue
		}
		for tgt, s := range targets {
			if !allowed[tgt] {
				continue
			}
			out = append(out, tracker.EdgeSuggestion{SourceKey: src, TargetKey: tgt, Char: s.Char})
		}
	}
	return out
}

// updateMainTracker aggregates cross-module edges from every mini tracker
// and rolls them up hierarchically, then writes the main tracker.
func (o *Orchestrator) updateMainTracker(km keys.KeyMap, records []*fileRecord, suggestions edgeMap, newKeys []string) (string, error) {
	moduleKeys := make(map[string]bool)
	for _, r := range records {
		if isUnderAnyRoot(r.path, o.Config.CodeRootDirectories, o.ProjectRoot) {
			moduleKeys[r.modKey] = true
		}
	}
	if len(moduleKeys) == 0 {
		return "", nil
	}

	priorityOf := func(ch byte) int { return o.Config.CharPriorityOf(string(ch)) }

	// Cross-module edges at highest priority seen across member files.
	edges := make(map[string]map[string]byte)
	addEdge := func(src, tgt string, ch byte) {
		if edges[src] == nil {
			edges[src] = make(map[string]byte)
		}
		if existing, ok := edges[src][tgt]; !ok || priorityOf(ch) > priorityOf(existing) {
			edges[src][tgt] = ch
		}
	}

	for _, r := range records {
		srcMod := r.modKey
		if !moduleKeys[srcMod] {
			continue
		}
		for tgt, s := range suggestions[r.key] {
			if s.Char == grid.PlaceholderChar || s.Char == grid.DiagonalChar {
				continue
			}
			tgtMod := moduleKeyFor(tgt)
			if tgtMod == srcMod || !moduleKeys[tgtMod] {
				continue
			}
			addEdge(srcMod, tgtMod, s.Char)
		}
	}

	rollUp(edges, moduleKeys, priorityOf)

	moduleList := make([]string, 0, len(moduleKeys))
	for k := range moduleKeys {
		moduleList = append(moduleList, k)
	}
	moduleList = keys.Sort(moduleList)

	var edgeSugs []tracker.EdgeSuggestion
	for src, targets := range edges {
		for tgt, ch := range targets {
			edgeSugs = append(edgeSugs, tracker.EdgeSuggestion{SourceKey: src, TargetKey: tgt, Char: ch})
		}
	}

	mainPath := filepath.Join(o.ProjectRoot, o.Config.Paths.MainTrackerFilename)
	backupDir := filepath.Join(o.ProjectRoot, o.Config.Paths.BackupsDir)
	if _, err := tracker.Update(mainPath, moduleList, km, edgeSugs, newKeys, backupDir); err != nil {
		return "", err
	}
	return mainPath, nil
}

// rollUp propagates each module's direct children's cross-module edges up
// to their parents, whose targets are neither the parent itself nor any of
// its own descendants, iterating to a fixed point or |modules| passes,
// whichever comes first.
func rollUp(edges map[string]map[string]byte, moduleKeys map[string]bool, priorityOf func(byte) int) {
	parentOf := keys.ParentOf

	isDescendant := func(candidate, ancestor string) bool {
		for cur := parentOf(candidate); cur != ""; cur = parentOf(cur) {
			if cur == ancestor {
				return true
			}
		}
		return false
	}

	for pass := 0; pass < len(moduleKeys); pass++ {
		changed := false
		for child := range moduleKeys {
			parent := parentOf(child)
			if parent == "" || !moduleKeys[parent] {
				continue
			}
			for tgt, ch := range edges[child] {
				if tgt == parent || isDescendant(tgt, parent) {
					continue
				}
				existing, has := edges[parent]
				if existing == nil {
					existing = make(map[string]byte)
					edges[parent] = existing
				}
				cur, ok := has2(existing, tgt)
				switch {
				case !ok:
					existing[tgt] = ch
					changed = true
				case priorityOf(ch) > priorityOf(cur):
					existing[tgt] = ch
					changed = true
				case priorityOf(ch) == priorityOf(cur) && cur != ch && isLtGtPair(cur, ch):
					existing[tgt] = 'x'
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
}

func has2(m map[string]byte, k string) (byte, bool) {
	v, ok := m[k]
	return v, ok
}

func isLtGtPair(a, b byte) bool {
	return (a == '<' && b == '>') || (a == '>' && b == '<')
}
