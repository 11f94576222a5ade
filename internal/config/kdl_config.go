package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// KDLFileName is the project-root-relative alternate config file, used when
// ConfigFileName is absent. A KDL document is merged onto Default() with the
// same deepMerge precedence JSON configs use.
const KDLFileName = ".deptrack.kdl"

// LoadKDL reads <projectRoot>/.deptrack.kdl and returns the partial Config it
// describes, or (nil, nil) if the file does not exist.
func LoadKDL(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, KDLFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", KDLFileName, err)
	}

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", KDLFileName, err)
	}

	cfg := &Config{Thresholds: Thresholds{}, Models: Models{}, Compute: Compute{}}
	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "excluded_dirs":
			cfg.ExcludedDirs = collectStringArgs(n)
		case "excluded_extensions":
			cfg.ExcludedExtensions = collectStringArgs(n)
		case "excluded_paths":
			cfg.ExcludedPaths = collectStringArgs(n)
		case "code_root_directories":
			cfg.CodeRootDirectories = collectStringArgs(n)
		case "doc_directories":
			cfg.DocDirectories = collectStringArgs(n)
		case "thresholds":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "code_similarity":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Thresholds.CodeSimilarity = v
					}
				case "doc_similarity":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Thresholds.DocSimilarity = v
					}
				}
			}
		case "models":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "doc_model_name":
					if s, ok := firstStringArg(cn); ok {
						cfg.Models.DocModelName = s
					}
				case "code_model_name":
					if s, ok := firstStringArg(cn); ok {
						cfg.Models.CodeModelName = s
					}
				}
			}
		case "compute":
			for _, cn := range n.Children {
				if nodeName(cn) == "embedding_device" {
					if s, ok := firstStringArg(cn); ok {
						cfg.Compute.EmbeddingDevice = EmbeddingDevice(s)
					}
				}
			}
		}
	}
	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	s, ok := n.Arguments[0].Value.(string)
	return s, ok
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// collectStringArgs reads a node's string arguments if present, falling back
// to one string per child node (KDL's block form: `excluded_dirs { "dist" }`
// instead of `excluded_dirs "dist" "build"`).
func collectStringArgs(n *document.Node) []string {
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) > 0 || len(n.Children) == 0 {
		return out
	}
	out = make([]string, 0, len(n.Children))
	for _, child := range n.Children {
		if s, ok := firstStringArg(child); ok {
			out = append(out, s)
		} else if child.Name != nil {
			if s, ok := child.Name.Value.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
