// Package config provides normalization helpers, project-root discovery,
// and the project configuration loaded from .clinerules.config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/standardbeagle/deptrack/internal/depterr"
	"github.com/standardbeagle/deptrack/internal/pathutil"
)

// ConfigFileName is the project-root-relative config file name.
const ConfigFileName = ".clinerules.config.json"

// Paths groups the directory/file-name configuration recognized under the
// "paths.*" dotted keys.
type Paths struct {
	MemoryDir           string `json:"memory_dir"`
	EmbeddingsDir       string `json:"embeddings_dir"`
	BackupsDir          string `json:"backups_dir"`
	DocDir              string `json:"doc_dir"`
	MainTrackerFilename string `json:"main_tracker_filename"`
	DocTrackerFilename  string `json:"doc_tracker_filename"`
}

// Thresholds groups the similarity thresholds consumed by the Embedding
// Manager (C6) and Dependency Suggester (C7).
type Thresholds struct {
	CodeSimilarity float64 `json:"code_similarity"`
	DocSimilarity  float64 `json:"doc_similarity"`
}

// Models names the embedding models for documentation vs. code content.
type Models struct {
	DocModelName  string `json:"doc_model_name"`
	CodeModelName string `json:"code_model_name"`
}

// EmbeddingDevice enumerates the recognized compute.embedding_device values.
type EmbeddingDevice string

const (
	DeviceAuto EmbeddingDevice = "auto"
	DeviceCPU  EmbeddingDevice = "cpu"
	DeviceCUDA EmbeddingDevice = "cuda"
	DeviceMPS  EmbeddingDevice = "mps"
)

// Compute groups device-selection configuration for the Embedding Manager.
type Compute struct {
	EmbeddingDevice EmbeddingDevice `json:"embedding_device"`
}

// Config is the exhaustive set of options the project config recognizes.
// Unknown JSON keys are preserved in Extra but otherwise ignored.
type Config struct {
	ProjectRoot string `json:"-"` // resolved at load time, not serialized

	ExcludedDirs       []string `json:"excluded_dirs"`
	ExcludedExtensions []string `json:"excluded_extensions"`
	ExcludedPaths      []string `json:"excluded_paths"`

	// ExcludeFiles is an alias of ExcludedPaths. Populated from either JSON
	// key; merged into ExcludedPaths after loading.
	ExcludeFiles []string `json:"exclude_files,omitempty"`

	CodeRootDirectories []string `json:"code_root_directories"`
	DocDirectories      []string `json:"doc_directories"`

	Paths       Paths          `json:"paths"`
	Thresholds  Thresholds     `json:"thresholds"`
	Models      Models         `json:"models"`
	Compute     Compute        `json:"compute"`
	CharPriority map[string]int `json:"char_priority"`

	// Extra retains any unrecognized top-level JSON keys so a round-trip
	// write does not silently drop user data. Never consulted by the engine.
	Extra map[string]json.RawMessage `json:"-"`

	// resolvedExcludedPaths is the effective exclusion set after glob
	// expansion against ProjectRoot — absolute, normalized paths.
	resolvedExcludedPaths map[string]bool
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ExcludedDirs: []string{
			".git", "node_modules", "vendor", "__pycache__", ".venv", "venv",
			"dist", "build", "target", ".idea", ".vscode",
		},
		ExcludedExtensions: []string{".pyc", ".pyo", ".so", ".o", ".class", ".exe", ".dll"},
		ExcludedPaths:      []string{},
		CodeRootDirectories: []string{"src"},
		DocDirectories:      []string{"docs"},
		Paths: Paths{
			MemoryDir:           "cline_docs",
			EmbeddingsDir:       "cline_docs/embeddings",
			BackupsDir:          "cline_docs/backups",
			DocDir:              "docs",
			MainTrackerFilename: "module_relationship_tracker.md",
			DocTrackerFilename:  "doc_tracker.md",
		},
		Thresholds: Thresholds{CodeSimilarity: 0.8, DocSimilarity: 0.65},
		Models:     Models{DocModelName: "all-MiniLM-L6-v2", CodeModelName: "all-MiniLM-L6-v2"},
		Compute:    Compute{EmbeddingDevice: DeviceAuto},
		CharPriority: map[string]int{
			".": 0, "p": 1, "s": 2, "S": 2,
			"d": 3, "<": 3, ">": 3, "x": 3, "n": 3,
		},
	}
}

// Load reads and deep-merges the project configuration from
// <projectRoot>/.clinerules.config.json over Default(). A missing config
// file is not an error: Load then merges <projectRoot>/.deptrack.kdl if it
// exists and parses, else keeps Default(). An unreadable, malformed, or
// schema-invalid config file is a configuration error: callers should log
// it and continue with Default().
func Load(projectRoot string) (*Config, error) {
	cfg := Default()
	cfg.ProjectRoot = pathutil.Normalize(projectRoot)

	path := filepath.Join(projectRoot, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if kdlCfg, kdlErr := LoadKDL(projectRoot); kdlErr == nil && kdlCfg != nil {
				cfg = deepMerge(cfg, kdlCfg)
				cfg.ProjectRoot = pathutil.Normalize(projectRoot)
			}
			cfg.ExcludedPaths = unionStrings(cfg.ExcludedPaths, NewBuildArtifactDetector(cfg.ProjectRoot).DetectOutputDirectories())
			if resolveErr := cfg.resolveExcludedPaths(); resolveErr != nil {
				return nil, resolveErr
			}
			return cfg, nil
		}
		return nil, depterr.NewConfigError(ConfigFileName, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, depterr.NewConfigError(ConfigFileName, fmt.Errorf("invalid JSON: %w", err))
	}

	if err := Validate(&loaded); err != nil {
		return nil, depterr.NewConfigError(ConfigFileName, err)
	}

	merged := deepMerge(cfg, &loaded)
	merged.ProjectRoot = cfg.ProjectRoot
	var raw map[string]json.RawMessage
	if json.Unmarshal(data, &raw) == nil {
		for _, known := range []string{"excluded_dirs", "excluded_extensions", "excluded_paths", "exclude_files",
			"code_root_directories", "doc_directories", "paths", "thresholds", "models", "compute", "char_priority"} {
			delete(raw, known)
		}
		if len(raw) > 0 {
			merged.Extra = raw
		}
	}
	merged.ExcludedPaths = unionStrings(merged.ExcludedPaths, NewBuildArtifactDetector(merged.ProjectRoot).DetectOutputDirectories())
	if err := merged.resolveExcludedPaths(); err != nil {
		return nil, err
	}
	return merged, nil
}

// deepMerge overlays project-supplied fields onto the defaults. Exclusion
// slices are unioned (deduplicated); the code and doc root-directory slices
// are replaced when the project supplies a non-empty one; scalars and nested
// structs are overridden field by field only where the loaded value is
// non-zero, so precedence is explicit
// in the merge logic rather than inferred from argument order.
func deepMerge(base, project *Config) *Config {
	merged := *base

	merged.ExcludedDirs = unionStrings(base.ExcludedDirs, project.ExcludedDirs)
	merged.ExcludedExtensions = unionStrings(base.ExcludedExtensions, project.ExcludedExtensions)

	// exclude_files is an alias for excluded_paths.
	allExcludedPaths := unionStrings(project.ExcludedPaths, project.ExcludeFiles)
	merged.ExcludedPaths = unionStrings(base.ExcludedPaths, allExcludedPaths)

	if len(project.CodeRootDirectories) > 0 {
		merged.CodeRootDirectories = project.CodeRootDirectories
	}
	if len(project.DocDirectories) > 0 {
		merged.DocDirectories = project.DocDirectories
	}

	if project.Paths.MemoryDir != "" {
		merged.Paths.MemoryDir = project.Paths.MemoryDir
	}
	if project.Paths.EmbeddingsDir != "" {
		merged.Paths.EmbeddingsDir = project.Paths.EmbeddingsDir
	}
	if project.Paths.BackupsDir != "" {
		merged.Paths.BackupsDir = project.Paths.BackupsDir
	}
	if project.Paths.DocDir != "" {
		merged.Paths.DocDir = project.Paths.DocDir
	}
	if project.Paths.MainTrackerFilename != "" {
		merged.Paths.MainTrackerFilename = project.Paths.MainTrackerFilename
	}
	if project.Paths.DocTrackerFilename != "" {
		merged.Paths.DocTrackerFilename = project.Paths.DocTrackerFilename
	}

	if project.Thresholds.CodeSimilarity != 0 {
		merged.Thresholds.CodeSimilarity = project.Thresholds.CodeSimilarity
	}
	if project.Thresholds.DocSimilarity != 0 {
		merged.Thresholds.DocSimilarity = project.Thresholds.DocSimilarity
	}

	if project.Models.DocModelName != "" {
		merged.Models.DocModelName = project.Models.DocModelName
	}
	if project.Models.CodeModelName != "" {
		merged.Models.CodeModelName = project.Models.CodeModelName
	}

	if project.Compute.EmbeddingDevice != "" {
		merged.Compute.EmbeddingDevice = project.Compute.EmbeddingDevice
	}

	if len(project.CharPriority) > 0 {
		mergedPriority := make(map[string]int, len(base.CharPriority))
		for k, v := range base.CharPriority {
			mergedPriority[k] = v
		}
		for k, v := range project.CharPriority {
			mergedPriority[k] = v
		}
		merged.CharPriority = mergedPriority
	}

	return &merged
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// resolveExcludedPaths expands glob entries in ExcludedPaths against
// ProjectRoot into a concrete, normalized set of absolute paths. Entries
// may be absolute or glob patterns; globs are expanded at load time.
func (c *Config) resolveExcludedPaths() error {
	resolved := make(map[string]bool)
	for _, pattern := range c.ExcludedPaths {
		if !hasGlobMagic(pattern) {
			abs := pattern
			if !filepath.IsAbs(abs) {
				abs = filepath.Join(c.ProjectRoot, abs)
			}
			resolved[pathutil.Normalize(abs)] = true
			continue
		}

		globPattern := pattern
		if filepath.IsAbs(globPattern) {
			rel, err := filepath.Rel(c.ProjectRoot, globPattern)
			if err == nil {
				globPattern = filepath.ToSlash(rel)
			}
		}
		matches, err := doublestar.Glob(os.DirFS(c.ProjectRoot), globPattern)
		if err != nil || len(matches) == 0 {
			// Invalid or non-matching pattern: keep it as a literal entry so
			// a still-to-be-created path (e.g. a not-yet-scanned generated
			// directory) is excluded once it appears. Never abort config
			// load over one exclusion entry.
			resolved[pathutil.Normalize(filepath.Join(c.ProjectRoot, pattern))] = true
			continue
		}
		for _, m := range matches {
			resolved[pathutil.Normalize(filepath.Join(c.ProjectRoot, m))] = true
		}
	}
	c.resolvedExcludedPaths = resolved
	return nil
}

func hasGlobMagic(pattern string) bool {
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

// IsExcludedPath reports whether the given absolute path is in the resolved
// excluded-paths set.
func (c *Config) IsExcludedPath(absPath string) bool {
	if c.resolvedExcludedPaths == nil {
		return false
	}
	return c.resolvedExcludedPaths[pathutil.Normalize(absPath)]
}

// CharPriorityOf returns the configured priority of a dependency character,
// or 0 (the priority of '.') for unknown characters.
func (c *Config) CharPriorityOf(ch string) int {
	if p, ok := c.CharPriority[ch]; ok {
		return p
	}
	return 0
}
