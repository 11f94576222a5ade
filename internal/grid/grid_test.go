package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompress_ShortRunsEmittedLiterally(t *testing.T) {
	assert.Equal(t, "nnp", Compress("nnp"))
	assert.Equal(t, "oo", Compress("oo"))
}

func TestCompress_LongRunCompresses(t *testing.T) {
	assert.Equal(t, "n5p3dd", Compress("nnnnnpppdd"))
}

func TestCompress_WholeStringIsASingleRun(t *testing.T) {
	assert.Equal(t, "s3", Compress("sss"))
	assert.Equal(t, "x4", Compress("xxxx"))
}

func TestCompress_DiagonalRunNeverCompresses(t *testing.T) {
	assert.Equal(t, "oooooo", Compress("oooooo"))
}

func TestDecompress_RoundTrip(t *testing.T) {
	for _, s := range []string{"nnnnnpppdd", "oooooo", "p", ".x.", "ssssssssssS"} {
		assert.Equal(t, s, Decompress(Compress(s)), "round trip for %q", s)
	}
}

func TestDecompress_ExpandsDigitRuns(t *testing.T) {
	assert.Equal(t, "nnnnnpppdd", Decompress("n5p3d2"))
}

func TestGetChar(t *testing.T) {
	compressed := Compress("pppppod")
	c, err := GetChar(compressed, 5)
	require.NoError(t, err)
	assert.Equal(t, 'o', c)
}

func TestGetChar_OutOfRange(t *testing.T) {
	_, err := GetChar("ppp", 10)
	assert.Error(t, err)
}

func TestSetChar_RejectsWritingDiagonalOffDiagonal(t *testing.T) {
	row := CreateInitialRow(0, 5)
	_, err := SetChar(row, 2, 'o', false)
	assert.Error(t, err)
}

func TestSetChar_RejectsNonDiagonalOnDiagonal(t *testing.T) {
	row := CreateInitialRow(0, 5)
	_, err := SetChar(row, 0, 'x', true)
	assert.Error(t, err)
}

func TestSetChar_ValidWrite(t *testing.T) {
	row := CreateInitialRow(0, 5)
	updated, err := SetChar(row, 2, 'x', false)
	require.NoError(t, err)
	c, err := GetChar(updated, 2)
	require.NoError(t, err)
	assert.Equal(t, 'x', c)
}

func TestNewInitial_DiagonalIsAlwaysO(t *testing.T) {
	keys := []string{"1A", "1A1", "1A2"}
	g := NewInitial(keys)
	require.NoError(t, Validate(g, keys))
	for i, k := range keys {
		c, err := GetChar(g[k], i)
		require.NoError(t, err)
		assert.Equal(t, 'o', c)
	}
}

func TestAddDependency_SetsCell(t *testing.T) {
	keys := []string{"1A", "1A1", "1A2"}
	g := NewInitial(keys)

	g2, err := AddDependency(g, "1A1", "1A2", keys, '>')
	require.NoError(t, err)

	c, err := GetChar(g2["1A1"], 2)
	require.NoError(t, err)
	assert.Equal(t, '>', c)
	// Original grid is untouched.
	orig, _ := GetChar(g["1A1"], 2)
	assert.Equal(t, PlaceholderChar, orig)
}

func TestAddDependency_RejectsSelfDependency(t *testing.T) {
	keys := []string{"1A", "1A1"}
	g := NewInitial(keys)

	_, err := AddDependency(g, "1A1", "1A1", keys, '>')
	assert.Error(t, err)
}

func TestAddDependency_UnknownKeyErrors(t *testing.T) {
	keys := []string{"1A", "1A1"}
	g := NewInitial(keys)

	_, err := AddDependency(g, "1A1", "9Z", keys, '>')
	assert.Error(t, err)
}

func TestRemoveDependency_ClearsToEmpty(t *testing.T) {
	keys := []string{"1A", "1A1", "1A2"}
	g := NewInitial(keys)
	g, err := AddDependency(g, "1A1", "1A2", keys, '>')
	require.NoError(t, err)

	g, err = RemoveDependency(g, "1A1", "1A2", keys)
	require.NoError(t, err)

	c, err := GetChar(g["1A1"], 2)
	require.NoError(t, err)
	assert.Equal(t, rune(EmptyChar), c)
}

func TestGetDependencies_GroupsByCharacter(t *testing.T) {
	keys := []string{"1A", "1A1", "1A2", "1A3"}
	g := NewInitial(keys)
	g, err := AddDependency(g, "1A1", "1A2", keys, '>')
	require.NoError(t, err)
	g, err = AddDependency(g, "1A1", "1A3", keys, '<')
	require.NoError(t, err)

	deps, err := GetDependencies(g, "1A1", keys)
	require.NoError(t, err)

	assert.Equal(t, []string{"1A2"}, deps['>'])
	assert.Equal(t, []string{"1A3"}, deps['<'])
}

func TestValidate_DetectsMissingRow(t *testing.T) {
	keys := []string{"1A", "1A1"}
	g := NewInitial(keys)
	delete(g, "1A1")

	assert.Error(t, Validate(g, keys))
}

func TestValidate_DetectsExtraRow(t *testing.T) {
	keys := []string{"1A", "1A1"}
	g := NewInitial(keys)
	g["9Z"] = CreateInitialRow(0, 2)

	assert.Error(t, Validate(g, keys))
}

func TestValidate_DetectsWrongRowLength(t *testing.T) {
	keys := []string{"1A", "1A1"}
	g := NewInitial(keys)
	g["1A1"] = Compress("ppp")

	assert.Error(t, Validate(g, keys))
}

func TestFormatForDisplay(t *testing.T) {
	keys := []string{"1A", "1A1"}
	g := NewInitial(keys)

	out := FormatForDisplay(g, keys)

	assert.Contains(t, out, "X 1A 1A1")
	assert.Contains(t, out, "1A = ")
	assert.Contains(t, out, "1A1 = ")
}
