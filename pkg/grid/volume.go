package grid

// Kind distinguishes how a volume's samples are interpreted during
// resampling: continuous intensities may be blended, discrete labels
// may not.
type Kind int

const (
	// Intensity marks a real-valued volume sampled with continuous
	// interpolation.
	Intensity Kind = iota

	// Label marks a volume of non-negative integer class ids sampled
	// with nearest-neighbor only.
	Label
)

// String returns the kind name for logs and error messages.
func (k Kind) String() string {
	switch k {
	case Intensity:
		return "intensity"
	case Label:
		return "label"
	default:
		return "unknown"
	}
}

// Volume is a 3D array of samples on a regular grid. Intensity volumes
// hold real values; label volumes hold integral class ids stored as
// float64 so both kinds share one flat-array representation.
type Volume struct {
	Grid Grid
	Kind Kind
	Data []float64
}

// NewVolume allocates a zero-filled volume of the given kind on g.
func NewVolume(g Grid, kind Kind) *Volume {
	return &Volume{
		Grid: g,
		Kind: kind,
		Data: make([]float64, g.NumVoxels()),
	}
}

// NewLabelVolume allocates a zero-filled label volume on g, with every
// voxel at background class 0.
func NewLabelVolume(g Grid) *Volume {
	return NewVolume(g, Label)
}

// At returns the sample at voxel (i,j,k).
func (v *Volume) At(i, j, k int) float64 {
	return v.Data[v.Grid.Index(i, j, k)]
}

// Set stores a sample at voxel (i,j,k).
func (v *Volume) Set(i, j, k int, value float64) {
	v.Data[v.Grid.Index(i, j, k)] = value
}

// MinValue returns the minimum sample in the volume. This is the default
// background fill for intensity resampling, modeling air outside the
// patient.
func (v *Volume) MinValue() float64 {
	if len(v.Data) == 0 {
		return 0
	}
	min := v.Data[0]
	for _, s := range v.Data[1:] {
		if s < min {
			min = s
		}
	}
	return min
}

// Clone returns a deep copy sharing no data with the receiver.
func (v *Volume) Clone() *Volume {
	out := &Volume{Grid: v.Grid, Kind: v.Kind, Data: make([]float64, len(v.Data))}
	copy(out.Data, v.Data)
	return out
}
