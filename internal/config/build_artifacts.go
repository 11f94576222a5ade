package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// BuildArtifactDetector inspects language-specific build manifests
// (package.json, tsconfig.json, Cargo.toml, pyproject.toml) for custom output
// directories, so a project that builds into something other than the
// defaulted dist/build/target still gets that directory auto-excluded from
// scanning without the user hand-editing excluded_dirs.
type BuildArtifactDetector struct {
	projectRoot string
}

// NewBuildArtifactDetector returns a detector rooted at projectRoot.
func NewBuildArtifactDetector(projectRoot string) *BuildArtifactDetector {
	return &BuildArtifactDetector{projectRoot: projectRoot}
}

// DetectOutputDirectories returns glob exclusion patterns (e.g. "**/dist/**")
// for every custom build output directory it finds. Missing or unparsable
// manifests are skipped silently — this is a best-effort enrichment, not a
// required config source.
func (d *BuildArtifactDetector) DetectOutputDirectories() []string {
	var patterns []string
	patterns = append(patterns, d.detectJavaScriptOutputs()...)
	patterns = append(patterns, d.detectRustOutputs()...)
	patterns = append(patterns, d.detectPythonOutputs()...)
	return DeduplicatePatterns(patterns)
}

func (d *BuildArtifactDetector) detectJavaScriptOutputs() []string {
	var patterns []string

	if data, err := os.ReadFile(filepath.Join(d.projectRoot, "package.json")); err == nil {
		var pkg map[string]interface{}
		if json.Unmarshal(data, &pkg) == nil {
			if build, ok := pkg["build"].(map[string]interface{}); ok {
				if outDir, ok := build["outDir"].(string); ok && outDir != "" {
					patterns = append(patterns, "**/"+outDir+"/**")
				}
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(d.projectRoot, "tsconfig.json")); err == nil {
		var tsconfig map[string]interface{}
		if json.Unmarshal(data, &tsconfig) == nil {
			if compilerOptions, ok := tsconfig["compilerOptions"].(map[string]interface{}); ok {
				if outDir, ok := compilerOptions["outDir"].(string); ok && outDir != "" {
					patterns = append(patterns, "**/"+outDir+"/**")
				}
			}
		}
	}

	return patterns
}

func (d *BuildArtifactDetector) detectRustOutputs() []string {
	var patterns []string

	data, err := os.ReadFile(filepath.Join(d.projectRoot, "Cargo.toml"))
	if err != nil {
		return patterns
	}
	var cargo map[string]interface{}
	if toml.Unmarshal(data, &cargo) != nil {
		return patterns
	}
	if profile, ok := cargo["profile"].(map[string]interface{}); ok {
		if release, ok := profile["release"].(map[string]interface{}); ok {
			if targetDir, ok := release["target-dir"].(string); ok && targetDir != "" {
				patterns = append(patterns, "**/"+targetDir+"/**")
			}
		}
	}
	return patterns
}

func (d *BuildArtifactDetector) detectPythonOutputs() []string {
	var patterns []string

	data, err := os.ReadFile(filepath.Join(d.projectRoot, "pyproject.toml"))
	if err != nil {
		return patterns
	}
	var pyproject map[string]interface{}
	if toml.Unmarshal(data, &pyproject) != nil {
		return patterns
	}
	tool, ok := pyproject["tool"].(map[string]interface{})
	if !ok {
		return patterns
	}
	if poetry, ok := tool["poetry"].(map[string]interface{}); ok {
		if build, ok := poetry["build"].(map[string]interface{}); ok {
			if targetDir, ok := build["target-dir"].(string); ok && targetDir != "" {
				patterns = append(patterns, "**/"+targetDir+"/**")
			}
		}
	}
	return patterns
}

// DeduplicatePatterns removes duplicate glob patterns while preserving order.
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
