package grid

import "math"

// DisplacementField is a dense field of physical-space displacement
// vectors sampled at the nodes of a grid. Vectors are stored interleaved
// as (dx,dy,dz) triples in the same x-fastest order as volume samples.
// A zero field is the identity mapping.
type DisplacementField struct {
	Grid    Grid
	Vectors []float64
}

// NewDisplacementField allocates a zero (identity) field on g.
func NewDisplacementField(g Grid) *DisplacementField {
	return &DisplacementField{
		Grid:    g,
		Vectors: make([]float64, 3*g.NumVoxels()),
	}
}

// ZeroField is an alias for NewDisplacementField that reads better at
// call sites modeling the reference phase.
func ZeroField(g Grid) *DisplacementField {
	return NewDisplacementField(g)
}

// VectorAt returns the displacement vector stored at node (i,j,k).
func (f *DisplacementField) VectorAt(i, j, k int) [3]float64 {
	base := 3 * f.Grid.Index(i, j, k)
	return [3]float64{f.Vectors[base], f.Vectors[base+1], f.Vectors[base+2]}
}

// SetVectorAt stores a displacement vector at node (i,j,k).
func (f *DisplacementField) SetVectorAt(i, j, k int, v [3]float64) {
	base := 3 * f.Grid.Index(i, j, k)
	f.Vectors[base] = v[0]
	f.Vectors[base+1] = v[1]
	f.Vectors[base+2] = v[2]
}

// IsZero reports whether every stored vector is exactly zero. The
// synthesizer uses this to fast-path the reference phase to an exact
// copy of the input.
func (f *DisplacementField) IsZero() bool {
	for _, c := range f.Vectors {
		if c != 0 {
			return false
		}
	}
	return true
}

// MaxMagnitude returns the largest vector magnitude present in the
// field. Clamped trilinear interpolation can never produce a larger
// displacement than this.
func (f *DisplacementField) MaxMagnitude() float64 {
	max := 0.0
	for base := 0; base+2 < len(f.Vectors); base += 3 {
		m := f.Vectors[base]*f.Vectors[base] +
			f.Vectors[base+1]*f.Vectors[base+1] +
			f.Vectors[base+2]*f.Vectors[base+2]
		if m > max {
			max = m
		}
	}
	return math.Sqrt(max)
}

// Clone returns a deep copy sharing no data with the receiver.
func (f *DisplacementField) Clone() *DisplacementField {
	out := &DisplacementField{Grid: f.Grid, Vectors: make([]float64, len(f.Vectors))}
	copy(out.Vectors, f.Vectors)
	return out
}

// PhaseSequence is the ordered set of displacement fields for one motion
// cycle, one per output phase. It is cyclic: Phase(n) wraps back to
// phase 0 when modeling periodic motion.
type PhaseSequence []*DisplacementField

// Phase returns the field for phase i, wrapping modulo the sequence
// length.
func (s PhaseSequence) Phase(i int) *DisplacementField {
	return s[((i%len(s))+len(s))%len(s)]
}
