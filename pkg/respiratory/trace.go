// Package respiratory models the breathing surrogate signal that drives
// phase selection: splitting a cycle into inhale and exhale, assigning
// amplitude magnitudes to the reference displacement fields, and
// blending two reference fields to match an arbitrary trace amplitude.
package respiratory

import (
	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
)

// Trace is a sampled respiratory amplitude signal, one sample per
// output frame.
type Trace []float64

// Inhale and Exhale are the direction labels assigned to trace samples.
const (
	Inhale = 1
	Exhale = -1
)

// savgol7 are Savitzky-Golay smoothing coefficients for window 7,
// polynomial order 2 (normalization 21).
var savgol7 = [7]float64{-2, 3, 6, 7, 6, 3, -2}

// Directions labels each trace sample as inhale or exhale from the sign
// of the smoothed amplitude velocity. Single-sample sign flips are
// treated as noise and folded into the preceding run, in two passes.
func (t Trace) Directions() []int {
	n := len(t)
	if n == 0 {
		return nil
	}

	velocity := gradient(t)
	smoothed := make([]float64, n)
	for i := range velocity {
		sum := 0.0
		for w := -3; w <= 3; w++ {
			sum += savgol7[w+3] * velocity[clampIndex(i+w, n)]
		}
		smoothed[i] = sum / 21
	}

	dirs := make([]int, n)
	for i, v := range smoothed {
		if v >= 0 {
			dirs[i] = Inhale
		} else {
			dirs[i] = Exhale
		}
	}

	for pass := 0; pass < 2; pass++ {
		for i := 1; i < n-1; i++ {
			if dirs[i] != dirs[i-1] && dirs[i] != dirs[i+1] {
				dirs[i] = dirs[i-1]
			}
		}
	}
	return dirs
}

// Min returns the smallest trace amplitude.
func (t Trace) Min() float64 {
	return floats.Min(t)
}

// Max returns the largest trace amplitude.
func (t Trace) Max() float64 {
	return floats.Max(t)
}

// AssignMagnitudes distributes the trace amplitude range evenly over
// the reference fields: ascending min..max for the nInhale inhale
// frames, descending max..min for the nExhale exhale frames.
func (t Trace) AssignMagnitudes(nInhale, nExhale int) (inhale, exhale []float64, err error) {
	if nInhale < 1 || nExhale < 1 {
		return nil, nil, errors.Newf("need at least one inhale and one exhale frame, got %d and %d", nInhale, nExhale)
	}
	lo, hi := t.Min(), t.Max()
	return span(lo, hi, nInhale), span(hi, lo, nExhale), nil
}

// span is floats.Span with the single-point edge case handled: a lone
// frame gets the far end of the range.
func span(l, u float64, n int) []float64 {
	if n == 1 {
		return []float64{u}
	}
	dst := make([]float64, n)
	floats.Span(dst, l, u)
	return dst
}

// gradient computes central differences with one-sided differences at
// the ends, matching numpy-style gradient of the source trace data.
func gradient(t Trace) []float64 {
	n := len(t)
	out := make([]float64, n)
	if n == 1 {
		return out
	}
	out[0] = t[1] - t[0]
	out[n-1] = t[n-1] - t[n-2]
	for i := 1; i < n-1; i++ {
		out[i] = (t[i+1] - t[i-1]) / 2
	}
	return out
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
