// Package grid provides the canonical representation of a regular 3D voxel
// grid and the data sampled on it: scalar image volumes, discrete label
// volumes, and dense displacement vector fields. All coordinate transforms
// between voxel index space and physical (anatomical) space live here.
//
// Conventions: volumes are stored as flat arrays in x-fastest order, so the
// sample at voxel (i,j,k) lives at index (k*ny+j)*nx + i. Physical
// coordinates are millimeters. Grids are assumed axis-normalized by an
// upstream preprocessing pass; the direction matrix defaults to identity.
package grid

import (
	"math"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrGridMismatch is returned when two grids that must share geometry
// disagree in shape, spacing, origin, or direction beyond tolerance.
// Callers wrap it with the component and phase index that detected it.
var ErrGridMismatch = errors.New("grid mismatch")

// DefaultTolerance is the relative tolerance used for grid geometry
// comparisons and index/physical round trips.
const DefaultTolerance = 1e-6

// Grid describes the geometry of a regular voxel lattice: its extent in
// voxels, the physical voxel spacing, the physical position of voxel
// (0,0,0), and the direction cosine matrix mapping index axes to
// anatomical axes.
type Grid struct {
	// Shape is the number of voxels along each axis (nx, ny, nz).
	Shape [3]int

	// Spacing is the physical size of a voxel along each axis in mm.
	Spacing [3]float64

	// Origin is the physical coordinate of the center of voxel (0,0,0).
	Origin [3]float64

	// Direction holds the 3x3 direction cosine matrix in row-major order.
	Direction [9]float64

	// inverse caches the inverse of Direction for PhysicalToIndex.
	inverse [9]float64
}

var identity = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

// NewGrid creates a grid with the given shape, spacing, and origin and an
// identity direction matrix.
func NewGrid(shape [3]int, spacing, origin [3]float64) Grid {
	return Grid{
		Shape:     shape,
		Spacing:   spacing,
		Origin:    origin,
		Direction: identity,
		inverse:   identity,
	}
}

// NewOrientedGrid creates a grid with an explicit direction cosine matrix.
// The matrix must be invertible; its inverse is computed once and cached.
func NewOrientedGrid(shape [3]int, spacing, origin [3]float64, direction [9]float64) (Grid, error) {
	g := Grid{Shape: shape, Spacing: spacing, Origin: origin, Direction: direction}

	d := mat.NewDense(3, 3, direction[:])
	var inv mat.Dense
	if err := inv.Inverse(d); err != nil {
		return Grid{}, errors.Wrap(err, "direction matrix is not invertible")
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			g.inverse[r*3+c] = inv.At(r, c)
		}
	}
	return g, nil
}

// NumVoxels returns the total number of voxels on the grid.
func (g Grid) NumVoxels() int {
	return g.Shape[0] * g.Shape[1] * g.Shape[2]
}

// Index returns the flat array index of voxel (i,j,k).
func (g Grid) Index(i, j, k int) int {
	return (k*g.Shape[1]+j)*g.Shape[0] + i
}

// InBounds reports whether voxel (i,j,k) lies on the grid.
func (g Grid) InBounds(i, j, k int) bool {
	return i >= 0 && i < g.Shape[0] &&
		j >= 0 && j < g.Shape[1] &&
		k >= 0 && k < g.Shape[2]
}

// InBoundsContinuous reports whether a continuous index coordinate lies
// within the grid extent, inclusive of the boundary nodes.
func (g Grid) InBoundsContinuous(c [3]float64) bool {
	for a := 0; a < 3; a++ {
		if c[a] < 0 || c[a] > float64(g.Shape[a]-1) {
			return false
		}
	}
	return true
}

// IndexToPhysical maps a continuous voxel index coordinate to physical
// space: p = origin + D * (c * spacing).
func (g Grid) IndexToPhysical(c [3]float64) [3]float64 {
	var s [3]float64
	for a := 0; a < 3; a++ {
		s[a] = c[a] * g.Spacing[a]
	}
	var p [3]float64
	for r := 0; r < 3; r++ {
		p[r] = g.Origin[r] +
			g.Direction[r*3+0]*s[0] +
			g.Direction[r*3+1]*s[1] +
			g.Direction[r*3+2]*s[2]
	}
	return p
}

// PhysicalToIndex maps a physical coordinate to continuous voxel index
// space, inverting IndexToPhysical. Composing the two is the identity up
// to floating-point tolerance.
func (g Grid) PhysicalToIndex(p [3]float64) [3]float64 {
	var d [3]float64
	for a := 0; a < 3; a++ {
		d[a] = p[a] - g.Origin[a]
	}
	var c [3]float64
	for r := 0; r < 3; r++ {
		c[r] = (g.inverse[r*3+0]*d[0] +
			g.inverse[r*3+1]*d[1] +
			g.inverse[r*3+2]*d[2]) / g.Spacing[r]
	}
	return c
}

// Equal reports whether two grids describe the same geometry: identical
// shape, and spacing/origin/direction within the given relative tolerance.
func (g Grid) Equal(other Grid, tol float64) bool {
	if g.Shape != other.Shape {
		return false
	}
	for a := 0; a < 3; a++ {
		if !closeRel(g.Spacing[a], other.Spacing[a], tol) {
			return false
		}
		if !closeRel(g.Origin[a], other.Origin[a], tol) {
			return false
		}
	}
	for i := 0; i < 9; i++ {
		if !closeRel(g.Direction[i], other.Direction[i], tol) {
			return false
		}
	}
	return true
}

// CheckSame returns ErrGridMismatch (with detail) when the two grids do
// not describe the same geometry at the default tolerance.
func CheckSame(a, b Grid) error {
	if a.Equal(b, DefaultTolerance) {
		return nil
	}
	return errors.Wrapf(ErrGridMismatch,
		"shape %v spacing %v origin %v direction %v vs shape %v spacing %v origin %v direction %v",
		a.Shape, a.Spacing, a.Origin, a.Direction, b.Shape, b.Spacing, b.Origin, b.Direction)
}

func closeRel(a, b, tol float64) bool {
	diff := math.Abs(a - b)
	if diff <= tol {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= tol*scale
}
