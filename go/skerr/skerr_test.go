package skerr

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_Nil_ReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil))
	assert.NoError(t, Wrapf(nil, "context %d", 1))
}

func TestWrap_KeepsOriginalErrorVisibleToErrorsIs(t *testing.T) {
	err := Wrap(io.EOF)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, io.EOF, Unwrap(err))
	assert.Contains(t, err.Error(), "skerr_test.go")
}

func TestWrapf_AddsContextOutermostFirst(t *testing.T) {
	err := Wrapf(io.EOF, "reading row %d", 3)
	err = Wrapf(err, "loading series")
	assert.Contains(t, err.Error(), "loading series: reading row 3: EOF")
	assert.True(t, errors.Is(err, io.EOF))
}

func TestWrapf_DoesNotModifyTheWrappedError(t *testing.T) {
	inner := Wrapf(io.EOF, "inner")
	_ = Wrapf(inner, "outer")
	assert.NotContains(t, inner.Error(), "outer")
}

func TestFmt_SupportsPercentW(t *testing.T) {
	err := Fmt("push %d: %w", 12, io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Contains(t, err.Error(), "push 12")
}
