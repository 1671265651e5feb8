// Package bug finds bug numbers in free-form text such as commit messages
// and sheriff notes.
package bug

import (
	"regexp"
	"strconv"
	"strings"

	"go.treeherder.org/infra/perf/go/types"
)

// bugRegex matches "Bug 123", "bug123", "b123", "b=123", "Bug #123" and
// lists like "Bugs 123, 456". The keyword must start a word and the last
// number must end one, so hex changeset ids don't match.
var bugRegex = regexp.MustCompile(`(?i)\b(?:bugs?\s*#?\s*|b=?)(\d+(?:\s*,\s*\d+)*)\b`)

// FromComments returns the bug numbers mentioned in text, in the order they
// first appear, without duplicates. Zero and numbers too large for a
// BugNumber are skipped.
func FromComments(text string) []types.BugNumber {
	ret := []types.BugNumber{}
	seen := map[types.BugNumber]bool{}
	for _, match := range bugRegex.FindAllStringSubmatch(text, -1) {
		for _, s := range strings.Split(match[1], ",") {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				continue
			}
			b := types.BugNumber(n)
			if !b.IsValid() || seen[b] {
				continue
			}
			seen[b] = true
			ret = append(ret, b)
		}
	}
	return ret
}
