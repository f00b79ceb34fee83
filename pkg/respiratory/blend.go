package respiratory

import (
	"math"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"

	"phantom4d/pkg/grid"
)

// BlendWeights finds the two reference magnitudes bracketing target and
// the linear weights between them. When target lies outside the
// reference range there is nothing to bracket; the nearest reference
// field is reused on both sides with weights that rescale its amplitude
// to target (w = target / (2*mag) each, so the blend is the nearest
// field scaled by target/mag).
func BlendWeights(refMags []float64, target float64) (lo, hi int, wLo, wHi float64) {
	nearest, bracketed := -1, false
	bestDiff := math.Inf(1)
	firstSwitch := -1

	prevBelow := refMags[0]-target < 0
	for i, m := range refMags {
		diff := m - target
		if math.Abs(diff) < bestDiff {
			bestDiff = math.Abs(diff)
			nearest = i
		}
		below := diff < 0
		if i > 0 && below != prevBelow && firstSwitch < 0 {
			firstSwitch = i
			bracketed = true
		}
		prevBelow = below
	}

	if !bracketed {
		if refMags[nearest] == 0 {
			return nearest, nearest, 0, 0
		}
		w := target / (2 * refMags[nearest])
		return nearest, nearest, w, w
	}

	hi = firstSwitch
	lo = hi - 1
	wHi = (target - refMags[lo]) / (refMags[hi] - refMags[lo])
	return lo, hi, 1 - wHi, wHi
}

// BlendFields linearly combines two displacement fields living on the
// same grid: out = wLo*lo + wHi*hi.
func BlendFields(lo, hi *grid.DisplacementField, wLo, wHi float64) (*grid.DisplacementField, error) {
	if err := grid.CheckSame(lo.Grid, hi.Grid); err != nil {
		return nil, errors.Wrap(err, "blend inputs")
	}
	out := grid.NewDisplacementField(lo.Grid)
	floats.AddScaled(out.Vectors, wLo, lo.Vectors)
	floats.AddScaled(out.Vectors, wHi, hi.Vectors)
	return out, nil
}

// SynthesizeSequence builds one displacement field per trace sample: the
// trace is labeled inhale/exhale, the reference fields are assigned
// evenly spaced amplitude magnitudes over the trace range, and each
// sample's field is blended from the two references bracketing its
// amplitude within its direction half.
func SynthesizeSequence(
	fields []*grid.DisplacementField,
	trace Trace,
	splitIdx int,
) (grid.PhaseSequence, error) {
	if len(trace) == 0 {
		return nil, errors.New("empty respiratory trace")
	}
	if splitIdx < 1 || splitIdx >= len(fields) {
		return nil, errors.Newf("split index %d outside reference fields [1,%d)", splitIdx, len(fields))
	}

	dirs := trace.Directions()
	magsInhale, magsExhale, err := trace.AssignMagnitudes(splitIdx, len(fields)-splitIdx)
	if err != nil {
		return nil, err
	}

	out := make(grid.PhaseSequence, len(trace))
	for i, target := range trace {
		f, err := InterpolateDirectional(fields, magsInhale, magsExhale, target, dirs[i], splitIdx)
		if err != nil {
			return nil, errors.Wrapf(err, "trace sample %d", i)
		}
		out[i] = f
	}
	return out, nil
}

// InterpolateDirectional synthesizes the displacement field for one
// trace sample: the reference fields are split into an inhale half
// [0,splitIdx) and an exhale half [splitIdx,len), the half matching the
// sample's direction is selected, and the two fields bracketing the
// sample's amplitude are blended.
func InterpolateDirectional(
	fields []*grid.DisplacementField,
	magsInhale, magsExhale []float64,
	target float64,
	direction int,
	splitIdx int,
) (*grid.DisplacementField, error) {
	if splitIdx < 1 || splitIdx >= len(fields) {
		return nil, errors.Newf("split index %d outside reference fields [1,%d)", splitIdx, len(fields))
	}

	var ref []*grid.DisplacementField
	var mags []float64
	if direction == Inhale {
		ref, mags = fields[:splitIdx], magsInhale
	} else {
		ref, mags = fields[splitIdx:], magsExhale
	}
	if len(ref) != len(mags) {
		return nil, errors.Newf("%d reference fields but %d magnitudes", len(ref), len(mags))
	}

	lo, hi, wLo, wHi := BlendWeights(mags, target)
	return BlendFields(ref[lo], ref[hi], wLo, wHi)
}
