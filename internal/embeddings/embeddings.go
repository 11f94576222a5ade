// Package embeddings implements the embedding manager: Python-aware
// preprocessing, a pluggable encode(text) -> vector boundary, per-subtree
// mtime-checked persistence, and cosine similarity thresholds.
//
// encode is treated as a swappable black box rather than a call into a
// specific model runtime. HashEncoder is the default implementation of
// that boundary, built on xxhash (token hashing) and porter2 (stemming);
// see DESIGN.md for why no third-party encoder is wired here instead. No
// other package in this module uses xxhash.
package embeddings

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/surgebase/porter2"

	"github.com/standardbeagle/deptrack/internal/config"
	"github.com/standardbeagle/deptrack/internal/depterr"
	"github.com/standardbeagle/deptrack/internal/pathutil"
)

// Vector is a dense embedding.
type Vector []float32

// Encoder turns preprocessed text into a Vector. Production deployments can
// swap in a real model-backed implementation; HashEncoder is the default.
type Encoder interface {
	Encode(text string) (Vector, error)
	Dimensions() int
}

// HashEncoder produces a deterministic bag-of-tokens vector: each token
// hashes into one of Dims buckets, weighted by term frequency, then the
// whole vector is L2-normalized. It has no notion of semantic similarity
// beyond shared vocabulary, which is the honest limit of a model-free
// encoder — real semantic recall requires a trained model.
type HashEncoder struct {
	Dims int
}

// NewHashEncoder returns a HashEncoder with dims buckets (256 if dims <= 0).
func NewHashEncoder(dims int) *HashEncoder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEncoder{Dims: dims}
}

func (h *HashEncoder) Dimensions() int { return h.Dims }

var tokenPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

func (h *HashEncoder) Encode(text string) (Vector, error) {
	vec := make(Vector, h.Dims)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		bucket := xxhash.Sum64String(stemToken(tok)) % uint64(h.Dims)
		vec[bucket]++
	}
	normalize(vec)
	return vec, nil
}

// stemToken reduces a token to its Porter2 stem before hashing, so that
// "authenticate", "authentication", and "authenticating" land in the same
// bucket instead of splitting the vocabulary three ways. Words shorter than
// 4 characters stem unreliably and are left as-is.
func stemToken(tok string) string {
	if len(tok) < 4 {
		return tok
	}
	return porter2.Stem(tok)
}

func normalize(v Vector) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range v {
		v[i] /= norm
	}
}

// CosineSimilarity returns the cosine similarity of two L2-normalized
// vectors, clamped to [0, 1]. Zero-norm vectors yield 0.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

var (
	pyImportLinePattern = regexp.MustCompile(`^\s*(import\s+|from\s+)`)
	pyDefPattern        = regexp.MustCompile(`(?m)^((?:async\s+)?def\s+\w+\([^)]*\)(?:\s*->\s*[^:]+)?:|class\s+\w+(?:\([^)]*\))?:)`)
)

// PreprocessForEmbedding strips import/from lines from Python source and
// appends each function/class definition line twice to bias the embedding
// toward structural vocabulary. Non-Python content passes through
// unchanged.
func PreprocessForEmbedding(path, content string) string {
	if !strings.HasSuffix(strings.ToLower(path), ".py") {
		return content
	}

	var filtered []string
	for _, line := range strings.Split(content, "\n") {
		if pyImportLinePattern.MatchString(line) {
			continue
		}
		filtered = append(filtered, line)
	}

	var weighted []string
	for _, m := range pyDefPattern.FindAllString(content, -1) {
		weighted = append(weighted, m, m)
	}

	return strings.Join(append(filtered, weighted...), "\n")
}

// SelectDevice resolves config's device preference down to a concrete
// choice, falling back to CPU for anything the local build can't back.
// Go has no CUDA/MPS binding available here, so cuda/mps always fall
// back to cpu; the function exists to keep the config-driven call site
// intact and documented ("select compute device by config, falling back
// to CPU").
func SelectDevice(device config.EmbeddingDevice) string {
	switch device {
	case config.DeviceCPU, config.DeviceCUDA, config.DeviceMPS:
		return "cpu"
	default:
		return "cpu"
	}
}

// Metadata records the mtime last seen for each embedded file in one
// subtree, mirroring the original's per-directory metadata.json sidecar.
type Metadata struct {
	Files map[string]int64 `json:"files"` // relative path -> unix nano mtime
}

func loadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Metadata{Files: map[string]int64{}}, nil
		}
		return nil, depterr.NewIOError("read embeddings metadata", path, err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, depterr.NewParseError(path, 0, "invalid embeddings metadata JSON", err)
	}
	if m.Files == nil {
		m.Files = map[string]int64{}
	}
	return &m, nil
}

func saveMetadata(path string, m *Metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return depterr.NewIOError("mkdir embeddings metadata dir", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return depterr.NewIOError("write embeddings metadata", path, err)
	}
	return nil
}

// Manager persists and loads embeddings under embeddingsDir, mirroring the
// source tree's layout (<embeddings_dir>/<relative-path>.vec) with one
// metadata.json per subtree directory.
type Manager struct {
	EmbeddingsDir string
	Encoder       Encoder
}

// NewManager builds a Manager rooted at embeddingsDir using enc to encode
// text (NewHashEncoder(0) if enc is nil).
func NewManager(embeddingsDir string, enc Encoder) *Manager {
	if enc == nil {
		enc = NewHashEncoder(0)
	}
	return &Manager{EmbeddingsDir: embeddingsDir, Encoder: enc}
}

func (m *Manager) vectorPath(relPath string) string {
	return filepath.Join(m.EmbeddingsDir, relPath+".vec")
}

func (m *Manager) metadataPath(relDir string) string {
	return filepath.Join(m.EmbeddingsDir, relDir, "metadata.json")
}

// EnsureEmbedding returns the up-to-date vector for relPath, re-encoding and
// persisting it when the metadata.json in its subtree disagrees with mtime
// or the vector is missing.
func (m *Manager) EnsureEmbedding(relPath, absPath string, mtime time.Time, rawContent string) (Vector, error) {
	relDir := filepath.Dir(relPath)
	if relDir == "." {
		relDir = ""
	}
	metaPath := m.metadataPath(relDir)
	meta, err := loadMetadata(metaPath)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(relPath)
	cachedMtime, seen := meta.Files[base]
	vecPath := m.vectorPath(relPath)

	if seen && cachedMtime == mtime.UnixNano() {
		if vec, err := loadVector(vecPath); err == nil {
			return vec, nil
		}
	}

	processed := PreprocessForEmbedding(absPath, rawContent)
	if strings.TrimSpace(processed) == "" {
		return nil, nil
	}
	vec, err := m.Encoder.Encode(processed)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", relPath, err)
	}
	if err := saveVector(vecPath, vec); err != nil {
		return nil, err
	}
	meta.Files[base] = mtime.UnixNano()
	if err := saveMetadata(metaPath, meta); err != nil {
		return nil, err
	}
	return vec, nil
}

func saveVector(path string, vec Vector) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return depterr.NewIOError("mkdir embeddings dir", filepath.Dir(path), err)
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return depterr.NewIOError("write embedding vector", path, err)
	}
	return nil
}

func loadVector(path string) (Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var vec Vector
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// IsExcludedForEmbedding reports whether a file should be skipped for
// embedding generation: excluded path, binary, or non-UTF-8 content.
func IsExcludedForEmbedding(cfg *config.Config, absPath string, isBinary, isValidUTF8 bool) bool {
	if cfg.IsExcludedPath(pathutil.Normalize(absPath)) {
		return true
	}
	return isBinary || !isValidUTF8
}

// Thresholds classifies a similarity score into the grid character: 'S' at
// or above code_similarity, 's' between doc_similarity and
// code_similarity, '.' below doc_similarity.
func Thresholds(sim float64, t config.Thresholds) byte {
	switch {
	case sim >= t.CodeSimilarity:
		return 'S'
	case sim >= t.DocSimilarity:
		return 's'
	default:
		return '.'
	}
}
