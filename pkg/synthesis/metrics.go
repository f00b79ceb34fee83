package synthesis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"phantom4d/pkg/grid"
)

// PhaseMetrics captures per-phase quality numbers: how far the warped
// image drifted from the reference and how much motion the applied
// field carried. They are logged at run summary level, never per voxel.
type PhaseMetrics struct {
	// RMSE is the root mean square intensity difference between the
	// warped image and the reference.
	RMSE float64

	// MeanDisplacement and MaxDisplacement summarize the applied
	// field's vector magnitudes in mm.
	MeanDisplacement float64
	MaxDisplacement  float64

	// LabelConflicts is the number of segmentation claims cleared by
	// the consistency policy for this phase.
	LabelConflicts int
}

func computeMetrics(reference, warped *grid.Volume, field *grid.DisplacementField) PhaseMetrics {
	var m PhaseMetrics

	if len(reference.Data) == len(warped.Data) && len(reference.Data) > 0 {
		sum := 0.0
		for i := range reference.Data {
			d := warped.Data[i] - reference.Data[i]
			sum += d * d
		}
		m.RMSE = math.Sqrt(sum / float64(len(reference.Data)))
	}

	nvox := field.Grid.NumVoxels()
	if nvox > 0 {
		mags := make([]float64, nvox)
		for v := 0; v < nvox; v++ {
			base := 3 * v
			mags[v] = math.Sqrt(field.Vectors[base]*field.Vectors[base] +
				field.Vectors[base+1]*field.Vectors[base+1] +
				field.Vectors[base+2]*field.Vectors[base+2])
		}
		m.MeanDisplacement = stat.Mean(mags, nil)
		m.MaxDisplacement = floats.Max(mags)
	}
	return m
}
