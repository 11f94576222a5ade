// Package watch re-runs the project orchestrator whenever a tracked file
// changes, so "analyze-project --watch" keeps the trackers current during an
// editing session instead of requiring a manual re-run after every save.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/deptrack/internal/config"
)

// DebounceInterval batches a burst of filesystem events (an editor's
// save-then-rename, a bulk find-and-replace) into a single re-run instead of
// one per touched file.
const DebounceInterval = 300 * time.Millisecond

// Watcher watches a project's code and doc roots and invokes onChange
// (debounced) for every event in a watched directory, except events on
// editor temp files (names ending in "~" or containing ".swp"). Excluded
// directories are not watched; files inside watched directories are not
// filtered further.
type Watcher struct {
	cfg      *config.Config
	fsw      *fsnotify.Watcher
	onChange func()

	mu    sync.Mutex
	timer *time.Timer
}

// New starts an fsnotify watch on every directory under cfg's code and doc
// roots (excluded directories are skipped, same rule the scanner itself
// uses), invoking onChange after DebounceInterval of quiet following the
// most recent relevant event.
func New(cfg *config.Config, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{cfg: cfg, fsw: fsw, onChange: onChange}

	roots := make([]string, 0, len(cfg.CodeRootDirectories)+len(cfg.DocDirectories))
	for _, r := range cfg.CodeRootDirectories {
		roots = append(roots, filepath.Join(cfg.ProjectRoot, r))
	}
	for _, r := range cfg.DocDirectories {
		roots = append(roots, filepath.Join(cfg.ProjectRoot, r))
	}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			log.Printf("watch: skipping %s: %v", root, err)
		}
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.isExcludedDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			log.Printf("watch: add %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) isExcludedDir(path string) bool {
	base := filepath.Base(path)
	for _, excluded := range w.cfg.ExcludedDirs {
		if base == excluded {
			return true
		}
	}
	return w.cfg.IsExcludedPath(path)
}

// Run blocks, dispatching debounced change notifications until ctx is
// canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch: fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if strings.HasSuffix(event.Name, "~") || strings.Contains(event.Name, ".swp") {
		return // editor temp files never carry a real content change
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !w.isExcludedDir(event.Name) {
			if err := w.fsw.Add(event.Name); err != nil {
				log.Printf("watch: add new directory %s: %v", event.Name, err)
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(DebounceInterval, w.onChange)
}
