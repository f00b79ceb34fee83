// Package synthesis orchestrates 4D phantom generation: for each
// temporal phase it warps the reference image and every organ
// segmentation with that phase's displacement field, enforces the
// segmentation consistency policy, and streams the assembled phase to
// an output sink. The displacement fields themselves travel with the
// output as ground truth for downstream validation.
package synthesis

import (
	"github.com/cockroachdb/errors"

	"phantom4d/pkg/grid"
)

// ErrEmptyPhaseSequence is returned when a run requests zero phases.
// It is raised before any resampling is attempted.
var ErrEmptyPhaseSequence = errors.New("empty phase sequence")

// Organ is one entry of a segmentation set: a structure id and its
// binary mask on the reference grid.
type Organ struct {
	ID   int
	Mask *grid.Volume
}

// SegmentationSet is the ordered collection of organ masks aligned to
// the reference image. Masks are disjoint on input; resampling may
// re-introduce overlap at organ interfaces, which the consistency
// policy resolves back to disjointness.
type SegmentationSet []Organ

// Clone deep-copies the set.
func (s SegmentationSet) Clone() SegmentationSet {
	out := make(SegmentationSet, len(s))
	for i, o := range s {
		out[i] = Organ{ID: o.ID, Mask: o.Mask.Clone()}
	}
	return out
}

// PhantomPhase is one frame of the output series: the warped image, the
// warped (and re-disjointed) segmentation set, the field that produced
// them, and per-phase quality metrics.
type PhantomPhase struct {
	Index        int
	Image        *grid.Volume
	Segmentation SegmentationSet
	Field        *grid.DisplacementField
	Metrics      PhaseMetrics
}

// Sink receives phases in index order as they are synthesized. A sink
// that persists immediately bounds resident memory to the parallelism
// chunk instead of the whole series.
type Sink interface {
	WritePhase(phase *PhantomPhase) error
}

// RunReport summarizes one completed synthesis run. Per-phase metrics
// are aggregated here and reported once, never per voxel.
type RunReport struct {
	Phases         int
	Background     float64
	FillMode       string
	TotalConflicts int

	// MaxRMSE is the largest per-phase intensity RMSE against the
	// reference; MeanDisplacement averages the per-phase mean applied
	// displacement magnitudes over the run.
	MaxRMSE          float64
	MeanDisplacement float64
	MaxDisplacement  float64
}
