package synthesis

import (
	"context"
	"runtime"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"phantom4d/pkg/grid"
	"phantom4d/pkg/resample"
)

// Params holds the synthesis configuration for one run. It is immutable
// once the run starts; phase workers share it read-only.
type Params struct {
	// NumPhases is the number of output phases to synthesize. The
	// phase sequence is cyclic, so NumPhases may exceed the number of
	// supplied fields for a full periodic series.
	NumPhases int

	// OrganPriority is the ordering over organ ids used to resolve
	// label conflicts; earlier entries win contested voxels. It must
	// cover every organ in the segmentation set and is fixed for the
	// whole run.
	OrganPriority []int

	// Fill is the background policy for intensity warping, recorded in
	// the run metadata.
	Fill resample.Fill

	// Parallelism is the number of phases synthesized concurrently.
	// Zero or negative selects the number of CPUs.
	Parallelism int

	// SmoothingWindow is the trailing moving-average window applied to
	// the displacement fields before warping; 1 disables smoothing.
	SmoothingWindow int
}

// Synthesizer drives the phantom pipeline: displacement selection,
// image and segmentation warping, consistency resolution, and ordered
// streaming of the assembled phases.
type Synthesizer struct {
	params Params
	logger *zap.SugaredLogger
}

// New creates a synthesizer. A nil logger is replaced with a no-op
// logger so library callers are never forced to configure logging.
func New(params Params, logger *zap.SugaredLogger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if params.Parallelism < 1 {
		params.Parallelism = runtime.NumCPU()
	}
	if params.SmoothingWindow < 1 {
		params.SmoothingWindow = 1
	}
	return &Synthesizer{params: params, logger: logger}
}

// Run synthesizes the full phantom series and streams it to sink in
// phase order. Inputs are validated in full before the first phase is
// resampled, so a fatal configuration or grid error aborts the run
// with no output persisted. A mid-run failure stops the series before
// the failing phase's chunk is pushed.
func (s *Synthesizer) Run(
	ctx context.Context,
	reference *grid.Volume,
	segs SegmentationSet,
	fields grid.PhaseSequence,
	sink Sink,
) (*RunReport, error) {
	if s.params.NumPhases <= 0 {
		return nil, errors.Wrapf(ErrEmptyPhaseSequence, "%d phases requested", s.params.NumPhases)
	}
	if len(fields) == 0 {
		return nil, errors.Wrap(ErrEmptyPhaseSequence, "no displacement fields supplied")
	}
	if reference.Kind != grid.Intensity {
		return nil, errors.Wrapf(resample.ErrDomainPolicy, "reference volume kind %s", reference.Kind)
	}
	background, err := s.params.Fill.BackgroundFor(reference)
	if err != nil {
		return nil, err
	}
	if _, err := priorityRank(segs, s.params.OrganPriority); err != nil {
		return nil, err
	}
	for _, organ := range segs {
		if organ.Mask.Kind != grid.Label {
			return nil, errors.Wrapf(resample.ErrDomainPolicy, "organ %d mask kind %s", organ.ID, organ.Mask.Kind)
		}
		if err := grid.CheckSame(reference.Grid, organ.Mask.Grid); err != nil {
			return nil, errors.Wrapf(err, "organ %d segmentation", organ.ID)
		}
	}
	for i := 0; i < s.params.NumPhases; i++ {
		if err := grid.CheckSame(reference.Grid, fields.Phase(i).Grid); err != nil {
			return nil, errors.Wrapf(err, "phase %d displacement field", i)
		}
	}

	report := &RunReport{
		Phases:     s.params.NumPhases,
		Background: background,
		FillMode:   s.params.Fill.Mode.String(),
	}

	s.logger.Infow("starting phantom synthesis",
		"phases", s.params.NumPhases,
		"organs", len(segs),
		"parallelism", s.params.Parallelism,
		"fillMode", report.FillMode,
		"background", background,
		"smoothingWindow", s.params.SmoothingWindow,
	)

	// Phases are independent, so synthesis proceeds in chunks of
	// Parallelism workers; each chunk is pushed to the sink in index
	// order before the next starts, bounding resident output phases to
	// the chunk size.
	for start := 0; start < s.params.NumPhases; start += s.params.Parallelism {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "run canceled before phase %d", start)
		}
		end := start + s.params.Parallelism
		if end > s.params.NumPhases {
			end = s.params.NumPhases
		}

		results := make([]*PhantomPhase, end-start)
		g, _ := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				phase, err := s.synthesizePhase(i, reference, segs, fields)
				if err != nil {
					return err
				}
				results[i-start] = phase
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, phase := range results {
			report.TotalConflicts += phase.Metrics.LabelConflicts
			report.MeanDisplacement += phase.Metrics.MeanDisplacement
			if phase.Metrics.RMSE > report.MaxRMSE {
				report.MaxRMSE = phase.Metrics.RMSE
			}
			if phase.Metrics.MaxDisplacement > report.MaxDisplacement {
				report.MaxDisplacement = phase.Metrics.MaxDisplacement
			}
			if err := sink.WritePhase(phase); err != nil {
				return nil, errors.Wrapf(err, "phase %d: sink", phase.Index)
			}
		}
	}
	report.MeanDisplacement /= float64(report.Phases)

	if report.TotalConflicts > 0 {
		s.logger.Warnw("label conflicts resolved by priority policy",
			"clearedClaims", report.TotalConflicts,
			"phases", report.Phases,
		)
	}
	s.logger.Infow("phantom series synthesized",
		"phases", report.Phases,
		"maxRMSE", report.MaxRMSE,
		"meanDisplacementMM", report.MeanDisplacement,
		"maxDisplacementMM", report.MaxDisplacement,
		"labelConflicts", report.TotalConflicts,
	)
	return report, nil
}

// synthesizePhase assembles one output frame. Workers only read the
// shared reference data and write into their own phase, so no
// synchronization beyond the chunk join is needed.
func (s *Synthesizer) synthesizePhase(
	i int,
	reference *grid.Volume,
	segs SegmentationSet,
	fields grid.PhaseSequence,
) (*PhantomPhase, error) {
	field := fields.Phase(i)
	if s.params.SmoothingWindow > 1 {
		field = s.smoothedField(i, fields)
	}

	phase := &PhantomPhase{Index: i, Field: field}

	if field.IsZero() {
		// Reference phase: the zero field is the identity mapping, and
		// the output must reproduce the input bit for bit.
		phase.Image = reference.Clone()
		phase.Segmentation = segs.Clone()
	} else {
		image, err := resample.Resample(reference, field, s.params.Fill)
		if err != nil {
			return nil, errors.Wrapf(err, "phase %d: image resample", i)
		}
		phase.Image = image

		warped := make(SegmentationSet, len(segs))
		var g errgroup.Group
		for oi, organ := range segs {
			oi, organ := oi, organ
			g.Go(func() error {
				mask, err := resample.Resample(organ.Mask, field, s.params.Fill)
				if err != nil {
					return errors.Wrapf(err, "phase %d: organ %d resample", i, organ.ID)
				}
				warped[oi] = Organ{ID: organ.ID, Mask: mask}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		phase.Segmentation = warped
	}

	conflicts, err := ResolvePriority(phase.Segmentation, s.params.OrganPriority)
	if err != nil {
		return nil, errors.Wrapf(err, "phase %d: consistency policy", i)
	}
	phase.Metrics = computeMetrics(reference, phase.Image, field)
	phase.Metrics.LabelConflicts = conflicts
	return phase, nil
}

// smoothedField averages the trailing SmoothingWindow fields ending at
// phase i. Phase 0 has no trailing history, so its window is just the
// zero reference field and the identity guarantee is preserved.
func (s *Synthesizer) smoothedField(i int, fields grid.PhaseSequence) *grid.DisplacementField {
	lo := i - s.params.SmoothingWindow + 1
	if lo < 0 {
		lo = 0
	}
	out := grid.NewDisplacementField(fields.Phase(i).Grid)
	scale := 1.0 / float64(i-lo+1)
	for j := lo; j <= i; j++ {
		floats.AddScaled(out.Vectors, scale, fields.Phase(j).Vectors)
	}
	return out
}
