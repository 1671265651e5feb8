// Package testutils contains helpers shared by tests.
package testutils

import (
	"context"
	"path/filepath"
	"runtime"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// AnyContext can be used in mock expectations in place of any
// context.Context argument.
var AnyContext = mock.MatchedBy(func(context.Context) bool { return true })

// TestDataDir returns the path to the caller's testdata directory, which is
// assumed to be "<path to caller dir>/testdata".
func TestDataDir(t require.TestingT) string {
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok, "could not find test file")
	for skip := 0; ; skip++ {
		_, file, _, ok := runtime.Caller(skip)
		require.True(t, ok, "could not find test data dir")
		if file != thisFile {
			return filepath.Join(filepath.Dir(file), "testdata")
		}
	}
}
