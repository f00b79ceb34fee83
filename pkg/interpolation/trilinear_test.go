package interpolation

import (
	"math"
	"testing"

	"phantom4d/pkg/grid"
)

func unitField() *grid.DisplacementField {
	g := grid.NewGrid([3]int{2, 2, 2}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	return grid.NewDisplacementField(g)
}

// TestAtGridNode verifies that a query on a grid node returns the
// stored vector exactly (degeneration to nearest-neighbor).
func TestAtGridNode(t *testing.T) {
	f := unitField()
	want := [3]float64{0.25, -1.5, 3.125}
	f.SetVectorAt(1, 0, 1, want)

	got := At(f, [3]float64{1, 0, 1})
	if got != want {
		t.Errorf("node query should be exact: want %v, got %v", want, got)
	}
}

// TestAtCenter verifies the trilinear blend at the cell center, which
// must be the plain average of the 8 corner vectors.
func TestAtCenter(t *testing.T) {
	f := unitField()
	sum := 0.0
	n := 0
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 2; i++ {
				v := float64(n + 1)
				f.SetVectorAt(i, j, k, [3]float64{v, 0, 0})
				sum += v
				n++
			}
		}
	}

	got := At(f, [3]float64{0.5, 0.5, 0.5})
	want := sum / 8
	if math.Abs(got[0]-want) > 1e-12 {
		t.Errorf("center blend: want %f, got %f", want, got[0])
	}
	if got[1] != 0 || got[2] != 0 {
		t.Errorf("zero components should stay zero, got %v", got)
	}
}

// TestAtClampsOutOfBounds verifies the no-extrapolation policy: far
// outside queries collapse onto the nearest boundary node.
func TestAtClampsOutOfBounds(t *testing.T) {
	f := unitField()
	low := [3]float64{-1, -2, -3}
	high := [3]float64{7, 8, 9}
	f.SetVectorAt(0, 0, 0, low)
	f.SetVectorAt(1, 1, 1, high)

	if got := At(f, [3]float64{-50, -50, -50}); got != low {
		t.Errorf("query below the grid should clamp to node (0,0,0): got %v", got)
	}
	if got := At(f, [3]float64{50, 50, 50}); got != high {
		t.Errorf("query above the grid should clamp to node (1,1,1): got %v", got)
	}
}

// TestAtBounded verifies that interpolated magnitudes never exceed the
// field maximum, even for out-of-bounds queries.
func TestAtBounded(t *testing.T) {
	g := grid.NewGrid([3]int{4, 4, 4}, [3]float64{1.5, 1, 2}, [3]float64{-3, 0, 7})
	f := grid.NewDisplacementField(g)
	for k := 0; k < 4; k++ {
		for j := 0; j < 4; j++ {
			for i := 0; i < 4; i++ {
				f.SetVectorAt(i, j, k, [3]float64{
					math.Sin(float64(i*7 + j)),
					math.Cos(float64(j*3 - k)),
					0.5 * float64(k-i),
				})
			}
		}
	}
	maxMag := f.MaxMagnitude()

	queries := [][3]float64{
		{-3, 0, 7}, {0, 1.7, 9.2}, {-100, -100, -100}, {100, 0, 0}, {-1.2, 2.6, 11.9},
	}
	for _, p := range queries {
		d := At(f, p)
		mag := math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
		if mag > maxMag+1e-12 {
			t.Errorf("interpolated magnitude %f at %v exceeds field maximum %f", mag, p, maxMag)
		}
	}
}

func TestAtRowMatchesAt(t *testing.T) {
	f := unitField()
	f.SetVectorAt(0, 0, 0, [3]float64{1, 2, 3})
	f.SetVectorAt(1, 1, 1, [3]float64{-1, 0, 1})

	points := [][3]float64{{0, 0, 0}, {0.25, 0.5, 0.75}, {1, 1, 1}}
	dst := make([][3]float64, len(points))
	AtRow(f, points, dst)

	for n, c := range points {
		if dst[n] != AtIndex(f, c) {
			t.Errorf("row result %d differs from scalar evaluation", n)
		}
	}
}

func TestSampleIntensityOutOfBounds(t *testing.T) {
	g := grid.NewGrid([3]int{2, 2, 2}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	v := grid.NewVolume(g, grid.Intensity)
	for i := range v.Data {
		v.Data[i] = float64(i)
	}

	if _, ok := SampleIntensity(v, [3]float64{-0.01, 0, 0}); ok {
		t.Error("sample below the grid should report out of bounds")
	}
	if value, ok := SampleIntensity(v, [3]float64{1, 1, 1}); !ok || value != 7 {
		t.Errorf("boundary node sample: want 7 in bounds, got %f (%v)", value, ok)
	}
}

func TestSampleNearestRounds(t *testing.T) {
	g := grid.NewGrid([3]int{3, 1, 1}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	v := grid.NewVolume(g, grid.Label)
	v.Data[0], v.Data[1], v.Data[2] = 4, 5, 6

	if value, _ := SampleNearest(v, [3]float64{0.4, 0, 0}); value != 4 {
		t.Errorf("0.4 should round to node 0, got %f", value)
	}
	if value, _ := SampleNearest(v, [3]float64{1.6, 0, 0}); value != 6 {
		t.Errorf("1.6 should round to node 2, got %f", value)
	}
	if _, ok := SampleNearest(v, [3]float64{2.5, 0, 0}); ok {
		t.Error("sample past the boundary should report out of bounds")
	}
}

// BenchmarkAtIndex benchmarks the hot per-voxel kernel.
func BenchmarkAtIndex(b *testing.B) {
	g := grid.NewGrid([3]int{32, 32, 32}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	f := grid.NewDisplacementField(g)
	for i := range f.Vectors {
		f.Vectors[i] = math.Sin(float64(i))
	}

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		AtIndex(f, [3]float64{15.3, 7.7, 22.1})
	}
}
