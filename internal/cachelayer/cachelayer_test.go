package cachelayer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGet(t *testing.T) {
	s := NewStore(10)
	s.Set(FileAnalysis, "a.py", 42)

	v, ok := s.Get(FileAnalysis, "a.py")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestStore_GetMiss(t *testing.T) {
	s := NewStore(10)
	_, ok := s.Get(FileAnalysis, "missing")
	assert.False(t, ok)
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s := NewStore(2)
	s.Set(Path, "a", 1)
	s.Set(Path, "b", 2)
	// touch "a" so "b" becomes the least recently used entry
	s.Get(Path, "a")
	s.Set(Path, "c", 3)

	_, aok := s.Get(Path, "a")
	_, bok := s.Get(Path, "b")
	_, cok := s.Get(Path, "c")

	assert.True(t, aok)
	assert.False(t, bok)
	assert.True(t, cok)
}

func TestStore_InvalidateCascadesToDependents(t *testing.T) {
	s := NewStore(10)
	s.Set(Metadata, "timestamp:/proj/a.py", time.Now())
	s.Set(FileAnalysis, "analysis:/proj/a.py", "record", "timestamp:/proj/a.py")
	s.Set(EmbeddingsSimilarity, "sim:/proj/a.py:/proj/b.py", 0.9, "analysis:/proj/a.py")

	s.Invalidate(FileAnalysis, "timestamp:/proj/a.py")

	_, ok := s.Get(FileAnalysis, "analysis:/proj/a.py")
	assert.False(t, ok, "invalidating a dependency key in the dependent's own cache must evict the dependent")
}

func TestStore_InvalidateWithinSameCacheCascades(t *testing.T) {
	s := NewStore(10)
	s.Set(FileAnalysis, "timestamp:/proj/a.py", "ts")
	s.Set(FileAnalysis, "analysis:/proj/a.py", "record", "timestamp:/proj/a.py")

	s.Invalidate(FileAnalysis, "timestamp:/proj/a.py")

	_, tsOk := s.Get(FileAnalysis, "timestamp:/proj/a.py")
	_, analysisOk := s.Get(FileAnalysis, "analysis:/proj/a.py")
	assert.False(t, tsOk)
	assert.False(t, analysisOk)
}

func TestStore_InvalidateMatching(t *testing.T) {
	s := NewStore(10)
	s.Set(Path, "analysis:py:/proj/a.py:/proj:v1", 1)
	s.Set(Path, "analysis:js:/proj/b.js:/proj:v1", 2)
	s.Set(Path, "unrelated", 3)

	err := s.InvalidateMatching(Path, `^analysis:py:`)
	require.NoError(t, err)

	_, pyOk := s.Get(Path, "analysis:py:/proj/a.py:/proj:v1")
	_, jsOk := s.Get(Path, "analysis:js:/proj/b.js:/proj:v1")
	_, unrelatedOk := s.Get(Path, "unrelated")
	assert.False(t, pyOk)
	assert.True(t, jsOk)
	assert.True(t, unrelatedOk)
}

func TestStore_InvalidateMatchingInvalidPattern(t *testing.T) {
	s := NewStore(10)
	err := s.InvalidateMatching(Path, "[")
	assert.Error(t, err)
}

func TestStore_ClearAll(t *testing.T) {
	s := NewStore(10)
	s.Set(FileAnalysis, "a", 1)
	s.Set(Path, "b", 2)

	s.ClearAll()

	assert.Equal(t, 0, s.Len(FileAnalysis))
	assert.Equal(t, 0, s.Len(Path))
}

func TestStore_CheckFileModified_FirstSeenIsNotModified(t *testing.T) {
	s := NewStore(10)
	fixed := time.Unix(1000, 0)
	modified := s.CheckFileModified("/proj/a.py", func(string) (time.Time, error) {
		return fixed, nil
	})
	assert.False(t, modified)
}

func TestStore_CheckFileModified_LaterMtimeIsModified(t *testing.T) {
	s := NewStore(10)
	t0 := time.Unix(1000, 0)
	t1 := time.Unix(2000, 0)

	s.CheckFileModified("/proj/a.py", func(string) (time.Time, error) { return t0, nil })
	modified := s.CheckFileModified("/proj/a.py", func(string) (time.Time, error) { return t1, nil })

	assert.True(t, modified)
}

func TestStore_CheckFileModified_SameMtimeIsNotModified(t *testing.T) {
	s := NewStore(10)
	t0 := time.Unix(1000, 0)

	s.CheckFileModified("/proj/a.py", func(string) (time.Time, error) { return t0, nil })
	modified := s.CheckFileModified("/proj/a.py", func(string) (time.Time, error) { return t0, nil })

	assert.False(t, modified)
}

func TestStore_CheckFileModified_StatErrorReportsModified(t *testing.T) {
	s := NewStore(10)
	modified := s.CheckFileModified("/proj/gone.py", func(string) (time.Time, error) {
		return time.Time{}, errors.New("no such file")
	})
	assert.True(t, modified)
}
