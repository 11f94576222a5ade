package depterr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError_Unwrap(t *testing.T) {
	underlying := errors.New("bad json")
	err := NewConfigError("thresholds.code_similarity", underlying)

	assert.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "thresholds.code_similarity")
}

func TestIOError_Message(t *testing.T) {
	err := NewIOError("write", "/tmp/main_module.md", errors.New("permission denied"))
	assert.Contains(t, err.Error(), "write")
	assert.Contains(t, err.Error(), "/tmp/main_module.md")
}

func TestMultiError_FiltersNil(t *testing.T) {
	err := NewMultiError([]error{nil, errors.New("a"), nil, errors.New("b")})
	assert.Len(t, err.Errors, 2)
}

func TestMultiError_AllNilReturnsNil(t *testing.T) {
	err := NewMultiError([]error{nil, nil})
	assert.Nil(t, err)
}

func TestGridError_Message(t *testing.T) {
	err := NewGridError("main.md", "row 1Aa1 decompresses to 4 chars, expected 5")
	assert.Contains(t, err.Error(), "main.md")
	assert.Contains(t, err.Error(), "row 1Aa1")
}
