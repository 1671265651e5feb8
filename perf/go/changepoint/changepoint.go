// Package changepoint finds the pushes at which a performance series steps up
// or down.
//
// For every candidate index i the W points before i (the back window) are
// compared with the W points starting at i (the fore window) using Welch's
// t-test. A candidate becomes a change point if |t| and the relative change
// of the means both pass their thresholds, and no stronger candidate lies
// within W points of it.
//
// Detect is a pure function of its inputs.
package changepoint

import (
	"math"
	"sort"
	"time"

	"github.com/aclements/go-moremath/stats"
	"go.treeherder.org/infra/perf/go/types"
)

const (
	// DefaultWindow is the number of points on each side of a candidate.
	DefaultWindow = 12

	// DefaultTThreshold is the minimum |t| of a change point.
	DefaultTThreshold = 7.0

	// DefaultPctThreshold is the minimum |Δmean| / mean(back window) of a
	// change point, as a fraction.
	DefaultPctThreshold = 0.02

	// MaxTValue is reported in place of an infinite t, which happens when
	// both windows have zero variance but different means.
	MaxTValue = 1e9
)

// Thresholds control detection for one framework.
type Thresholds struct {
	// Window is W, the number of points on each side of a candidate.
	Window int `json:"window"`

	// TThreshold is the minimum |t|.
	TThreshold float64 `json:"t_threshold"`

	// PctThreshold is the minimum relative change of the means, as a
	// fraction, i.e. 0.02 is 2%.
	PctThreshold float64 `json:"pct_threshold"`
}

// DefaultThresholds returns W=12, t=7.0, pct=2%.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Window:       DefaultWindow,
		TThreshold:   DefaultTThreshold,
		PctThreshold: DefaultPctThreshold,
	}
}

// Point is the value of a series at one push.
type Point struct {
	PushID        types.PushID
	PushTimestamp time.Time
	Value         float64
}

// Detection is a single change point.
type Detection struct {
	// Index of the first point of the fore window.
	Index int `json:"index"`

	// PushID is the first push of the fore window, the culprit.
	PushID types.PushID `json:"push_id"`

	// PushTimestamp of PushID.
	PushTimestamp time.Time `json:"push_timestamp"`

	// PrevPushID is the push immediately preceding PushID in the series,
	// the last known good push.
	PrevPushID types.PushID `json:"prev_push_id"`

	// PrevPushTimestamp of PrevPushID.
	PrevPushTimestamp time.Time `json:"prev_push_timestamp"`

	// PrevValue and NewValue are the means of the back and fore windows.
	PrevValue float64 `json:"prev_value"`
	NewValue  float64 `json:"new_value"`

	// AmountAbs is NewValue - PrevValue.
	AmountAbs float64 `json:"amount_abs"`

	// AmountPct is AmountAbs / |PrevValue|, a signed fraction.
	AmountPct float64 `json:"amount_pct"`

	// TValue is |t|, capped at MaxTValue.
	TValue float64 `json:"t_value"`

	// IsRegression is true if NewValue is worse than PrevValue.
	IsRegression bool `json:"is_regression"`
}

// candidate is an index that passed both thresholds.
type candidate struct {
	index int
	absT  float64
}

// Detect returns the change points of series, in ascending index order.
//
// series must be ordered by push time with at most one point per push, see
// Collapse. lowerIsBetter is the polarity of the series.
func Detect(series []Point, th Thresholds, lowerIsBetter bool) []Detection {
	w := th.Window
	if w < 2 || len(series) < 2*w {
		return nil
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}

	candidates := []candidate{}
	for i := w; i+w <= len(values); i++ {
		pre := stats.Sample{Xs: values[i-w : i]}
		post := stats.Sample{Xs: values[i : i+w]}
		preMean, postMean := pre.Mean(), post.Mean()
		if preMean == 0 {
			continue
		}
		absT := math.Abs(welchT(post, pre, postMean, preMean))
		if absT < th.TThreshold {
			continue
		}
		if math.Abs(postMean-preMean)/math.Abs(preMean) < th.PctThreshold {
			continue
		}
		candidates = append(candidates, candidate{index: i, absT: absT})
	}

	ret := []Detection{}
	for _, c := range suppress(candidates, w) {
		i := c.index
		prev := stats.Mean(values[i-w : i])
		next := stats.Mean(values[i : i+w])
		amountAbs := next - prev
		isRegression := next < prev
		if lowerIsBetter {
			isRegression = next > prev
		}
		ret = append(ret, Detection{
			Index:             i,
			PushID:            series[i].PushID,
			PushTimestamp:     series[i].PushTimestamp,
			PrevPushID:        series[i-1].PushID,
			PrevPushTimestamp: series[i-1].PushTimestamp,
			PrevValue:         prev,
			NewValue:          next,
			AmountAbs:         amountAbs,
			AmountPct:         amountAbs / math.Abs(prev),
			TValue:            math.Min(c.absT, MaxTValue),
			IsRegression:      isRegression,
		})
	}
	return ret
}

// welchT returns Welch's t of post against pre. Two windows without variance
// give ±Inf if the means differ and 0 if they don't.
func welchT(post, pre stats.Sample, postMean, preMean float64) float64 {
	res, err := stats.TwoSampleWelchTTest(post, pre, stats.LocationDiffers)
	if err == nil {
		return res.T
	}
	// ErrZeroVariance is the only error possible with two windows of W >= 2
	// points.
	switch {
	case postMean > preMean:
		return math.Inf(1)
	case postMean < preMean:
		return math.Inf(-1)
	default:
		return 0
	}
}

// suppress keeps the strongest candidates such that no two kept candidates
// are less than w points apart. The highest |t| wins, ties go to the
// earliest index. The result is in ascending index order.
func suppress(candidates []candidate, w int) []candidate {
	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].absT != sorted[j].absT {
			return sorted[i].absT > sorted[j].absT
		}
		return sorted[i].index < sorted[j].index
	})

	kept := []candidate{}
	for _, c := range sorted {
		ok := true
		for _, k := range kept {
			if abs(c.index-k.index) < w {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].index < kept[j].index
	})
	return kept
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
