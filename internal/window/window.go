// Package window computes trailing-window z-scores and percentile ranks
// over an ordered numeric series. It is purely functional: the same series
// and window size always produce bit-identical results.
package window

import (
	"fmt"
	"math"
)

// NAReasonStdZero flags a window whose population standard deviation is
// exactly zero. The z-score is still a real 0.0; the reason lets callers
// distinguish "no variance" from a genuinely zero-scored value.
const NAReasonStdZero = "std_zero"

// InsufficientHistory builds the NA reason for a series shorter than the
// requested window, e.g. "insufficient_history:3/60".
func InsufficientHistory(have, need int) string {
	return fmt.Sprintf("insufficient_history:%d/%d", have, need)
}

// Result is the statistics output for one field and one window size.
// Z and P are nil when the window could not be computed; NAReason is nil
// when the result is fully computable without caveat.
type Result struct {
	Z        *float64 `json:"z"`
	P        *float64 `json:"p"`
	NAReason *string  `json:"na_reason"`
}

// NA reports whether the result carries no computed statistics.
func (r Result) NA() bool {
	return r.Z == nil && r.P == nil
}

// Compute returns window statistics over the last n values of series.
// The series must already be cleaned (no NA entries) and in chronological
// order; the latest value is series[len-1] and is by definition inside its
// own window.
//
// Semantics:
//   - len(series) < n: Z and P are nil, NAReason "insufficient_history:k/n".
//   - zero population stddev: Z is 0.0, NAReason "std_zero".
//   - otherwise Z = (x - mean) / populationStdDev, NAReason nil.
//   - P is the tie-inclusive percentile rank of the latest value,
//     100 * count(v <= x) / n, so the maximum always ranks 100.
func Compute(series []float64, n int) Result {
	if n <= 0 {
		reason := InsufficientHistory(len(series), n)
		return Result{NAReason: &reason}
	}
	if len(series) < n {
		reason := InsufficientHistory(len(series), n)
		return Result{NAReason: &reason}
	}

	win := series[len(series)-n:]
	x := win[n-1]

	var sum float64
	for _, v := range win {
		sum += v
	}
	mean := sum / float64(n)

	var sqSum float64
	for _, v := range win {
		d := v - mean
		sqSum += d * d
	}
	std := math.Sqrt(sqSum / float64(n))

	var atOrBelow int
	for _, v := range win {
		if v <= x {
			atOrBelow++
		}
	}
	p := 100 * float64(atOrBelow) / float64(n)

	if std == 0 {
		z := 0.0
		reason := NAReasonStdZero
		return Result{Z: &z, P: &p, NAReason: &reason}
	}

	z := (x - mean) / std
	return Result{Z: &z, P: &p}
}
