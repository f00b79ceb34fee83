// Package interpolation evaluates displacement fields and volumes at
// arbitrary, possibly non-integer sample coordinates. The kernel is
// trilinear over the 8 surrounding grid nodes; boundary behavior is the
// caller-visible policy that distinguishes field evaluation (clamped,
// no extrapolation) from volume sampling (out-of-bounds reported to the
// resampler, which applies its fill policy).
package interpolation

import (
	"math"

	"phantom4d/pkg/grid"
)

// axisNodes returns the bracketing node indices and the fractional
// weight of the upper node for a continuous coordinate x on an axis of
// n nodes. x is clamped to [0, n-1] first, so queries outside the grid
// collapse onto the boundary node and never extrapolate.
func axisNodes(x float64, n int) (i0, i1 int, fr float64) {
	if x < 0 {
		x = 0
	}
	if x > float64(n-1) {
		x = float64(n - 1)
	}
	i0 = int(math.Floor(x))
	if i0 > n-2 {
		i0 = n - 2
	}
	if i0 < 0 {
		i0 = 0
	}
	i1 = i0 + 1
	if i1 > n-1 {
		i1 = n - 1
	}
	return i0, i1, x - float64(i0)
}

// At evaluates the displacement field at a physical coordinate using
// trilinear interpolation with clamped boundaries. The result is a
// convex combination of stored node vectors: weights lie in [0,1] and
// sum to 1, so the interpolated magnitude never exceeds the field
// maximum, and a query on a grid node returns that node's vector
// exactly.
func At(f *grid.DisplacementField, p [3]float64) [3]float64 {
	return AtIndex(f, f.Grid.PhysicalToIndex(p))
}

// AtIndex is At for a coordinate already expressed in continuous voxel
// index space. The resampler uses this form to avoid a redundant
// physical round trip per voxel.
func AtIndex(f *grid.DisplacementField, c [3]float64) [3]float64 {
	i0, i1, fx := axisNodes(c[0], f.Grid.Shape[0])
	j0, j1, fy := axisNodes(c[1], f.Grid.Shape[1])
	k0, k1, fz := axisNodes(c[2], f.Grid.Shape[2])

	var out [3]float64
	for _, corner := range [8]struct {
		i, j, k int
		w       float64
	}{
		{i0, j0, k0, (1 - fx) * (1 - fy) * (1 - fz)},
		{i1, j0, k0, fx * (1 - fy) * (1 - fz)},
		{i0, j1, k0, (1 - fx) * fy * (1 - fz)},
		{i1, j1, k0, fx * fy * (1 - fz)},
		{i0, j0, k1, (1 - fx) * (1 - fy) * fz},
		{i1, j0, k1, fx * (1 - fy) * fz},
		{i0, j1, k1, (1 - fx) * fy * fz},
		{i1, j1, k1, fx * fy * fz},
	} {
		if corner.w == 0 {
			continue
		}
		base := 3 * f.Grid.Index(corner.i, corner.j, corner.k)
		out[0] += corner.w * f.Vectors[base]
		out[1] += corner.w * f.Vectors[base+1]
		out[2] += corner.w * f.Vectors[base+2]
	}
	return out
}

// AtRow evaluates the field at a batch of continuous index coordinates,
// writing one vector per input into dst. dst must have len(points)
// entries. Row-batched evaluation is the unit of work the resampler
// processes per output scanline.
func AtRow(f *grid.DisplacementField, points [][3]float64, dst [][3]float64) {
	for n, c := range points {
		dst[n] = AtIndex(f, c)
	}
}

// SampleIntensity samples a volume at a continuous index coordinate
// with trilinear blending. ok is false when the coordinate lies outside
// the volume extent; the caller decides the fill value.
func SampleIntensity(v *grid.Volume, c [3]float64) (value float64, ok bool) {
	if !v.Grid.InBoundsContinuous(c) {
		return 0, false
	}
	i0, i1, fx := axisNodes(c[0], v.Grid.Shape[0])
	j0, j1, fy := axisNodes(c[1], v.Grid.Shape[1])
	k0, k1, fz := axisNodes(c[2], v.Grid.Shape[2])

	sum := 0.0
	for _, corner := range [8]struct {
		i, j, k int
		w       float64
	}{
		{i0, j0, k0, (1 - fx) * (1 - fy) * (1 - fz)},
		{i1, j0, k0, fx * (1 - fy) * (1 - fz)},
		{i0, j1, k0, (1 - fx) * fy * (1 - fz)},
		{i1, j1, k0, fx * fy * (1 - fz)},
		{i0, j0, k1, (1 - fx) * (1 - fy) * fz},
		{i1, j0, k1, fx * (1 - fy) * fz},
		{i0, j1, k1, (1 - fx) * fy * fz},
		{i1, j1, k1, fx * fy * fz},
	} {
		if corner.w == 0 {
			continue
		}
		sum += corner.w * v.Data[v.Grid.Index(corner.i, corner.j, corner.k)]
	}
	return sum, true
}

// SampleNearest samples a volume at a continuous index coordinate by
// rounding to the nearest node. Discrete class ids must never be
// blended, so this is the only kernel permitted for label volumes. ok
// is false outside the volume extent.
func SampleNearest(v *grid.Volume, c [3]float64) (value float64, ok bool) {
	if !v.Grid.InBoundsContinuous(c) {
		return 0, false
	}
	i := int(math.Round(c[0]))
	j := int(math.Round(c[1]))
	k := int(math.Round(c[2]))
	return v.Data[v.Grid.Index(i, j, k)], true
}
