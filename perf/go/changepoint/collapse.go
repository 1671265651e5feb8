package changepoint

import (
	"sort"
	"time"

	"go.treeherder.org/infra/perf/go/types"
)

// Sample is a single measurement, several of which can exist for one push
// when a job is retriggered.
type Sample struct {
	PushID        types.PushID
	PushTimestamp time.Time
	Value         float64
}

// Collapse orders samples by push time, then push id, and replaces all the
// samples of a push with one Point holding their mean. Pushes without
// samples simply don't appear.
func Collapse(samples []Sample) []Point {
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].PushTimestamp.Equal(sorted[j].PushTimestamp) {
			return sorted[i].PushTimestamp.Before(sorted[j].PushTimestamp)
		}
		return sorted[i].PushID < sorted[j].PushID
	})

	ret := []Point{}
	sum, count := 0.0, 0
	for i, s := range sorted {
		sum += s.Value
		count++
		if i+1 < len(sorted) && sorted[i+1].PushID == s.PushID {
			continue
		}
		ret = append(ret, Point{
			PushID:        s.PushID,
			PushTimestamp: s.PushTimestamp,
			Value:         sum / float64(count),
		})
		sum, count = 0, 0
	}
	return ret
}
