package bug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.treeherder.org/infra/perf/go/types"
)

func TestFromComments(t *testing.T) {
	test := func(name, text string, expected ...types.BugNumber) {
		t.Run(name, func(t *testing.T) {
			if expected == nil {
				expected = []types.BugNumber{}
			}
			assert.Equal(t, expected, FromComments(text))
		})
	}
	test("bug in parens", "Fix instanceof with bound functions (bug 597167, r=brendan).", 597167)
	test("list", "Bugs 12345, 67890", 12345, 67890)
	test("backout", "Backed out changeset f8854fb6b63f - Wrong patch attached to the bug.")
	test("no space", "bug12345 - fix things", 12345)
	test("short form", "b12345", 12345)
	test("b equals", "b=12345", 12345)
	test("hash", "Bug #12345", 12345)
	test("uppercase", "BUG 42", 42)
	test("duplicates keep first occurrence", "Bug 3, bug 1 and Bug 3 again, bugs 2, 1", 3, 1, 2)
	test("zero dropped", "Bug 0")
	test("inside a word", "debug 12345 and abug12345")
	test("number runs into letters", "bug 12345abc")
	test("overflow dropped", "bug 99999999999999999999999 and bug 7", 7)
	test("empty", "")
}

func TestFromComments_NeverReturnsNonPositiveOrDuplicates(t *testing.T) {
	for _, text := range []string{
		"bug 0, bug 00, bugs 0, 1, 1, 01",
		"Bug 5 Bug 5 Bug 5",
		"b0 b1 b=0",
	} {
		got := FromComments(text)
		seen := map[types.BugNumber]bool{}
		for _, b := range got {
			assert.True(t, b > 0, text)
			assert.False(t, seen[b], text)
			seen[b] = true
		}
	}
}
