package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phantom4d/pkg/grid"
)

func lineMask(g grid.Grid, xs ...int) *grid.Volume {
	m := grid.NewLabelVolume(g)
	for _, x := range xs {
		m.Set(x, 0, 0, 1)
	}
	return m
}

func TestResolvePriorityClearsLosingClaims(t *testing.T) {
	g := grid.NewGrid([3]int{6, 1, 1}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	segs := SegmentationSet{
		{ID: 7, Mask: lineMask(g, 0, 1, 2)},
		{ID: 3, Mask: lineMask(g, 2, 3, 4)},
	}

	// Organ 3 outranks organ 7 regardless of slice order.
	conflicts, err := ResolvePriority(segs, []int{3, 7})
	require.NoError(t, err)

	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 0.0, segs[0].Mask.At(2, 0, 0), "organ 7 loses the contested voxel")
	assert.Equal(t, 1.0, segs[1].Mask.At(2, 0, 0), "organ 3 keeps the contested voxel")
	assert.Equal(t, 1.0, segs[0].Mask.At(0, 0, 0))
	assert.Equal(t, 1.0, segs[1].Mask.At(4, 0, 0))
}

func TestResolvePriorityDisjointInputUntouched(t *testing.T) {
	g := grid.NewGrid([3]int{6, 1, 1}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	segs := SegmentationSet{
		{ID: 1, Mask: lineMask(g, 0, 1)},
		{ID: 2, Mask: lineMask(g, 3, 4)},
	}
	before := segs.Clone()

	conflicts, err := ResolvePriority(segs, []int{1, 2})
	require.NoError(t, err)
	assert.Zero(t, conflicts)
	assert.Equal(t, before[0].Mask.Data, segs[0].Mask.Data)
	assert.Equal(t, before[1].Mask.Data, segs[1].Mask.Data)
}

func TestResolvePriorityThreeWayConflict(t *testing.T) {
	g := grid.NewGrid([3]int{3, 1, 1}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	segs := SegmentationSet{
		{ID: 1, Mask: lineMask(g, 1)},
		{ID: 2, Mask: lineMask(g, 1)},
		{ID: 3, Mask: lineMask(g, 1)},
	}

	conflicts, err := ResolvePriority(segs, []int{2, 3, 1})
	require.NoError(t, err)

	// Two of the three claims on the shared voxel are cleared.
	assert.Equal(t, 2, conflicts)
	assert.Equal(t, 0.0, segs[0].Mask.At(1, 0, 0))
	assert.Equal(t, 1.0, segs[1].Mask.At(1, 0, 0))
	assert.Equal(t, 0.0, segs[2].Mask.At(1, 0, 0))
}

func TestResolvePriorityValidatesOrdering(t *testing.T) {
	g := grid.NewGrid([3]int{3, 1, 1}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	segs := SegmentationSet{{ID: 1, Mask: lineMask(g, 0)}, {ID: 2, Mask: lineMask(g, 1)}}

	_, err := ResolvePriority(segs, []int{1, 1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listed twice")

	_, err = ResolvePriority(segs, []int{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "organ 2 missing")
}

func TestResolvePriorityEmptySet(t *testing.T) {
	conflicts, err := ResolvePriority(nil, nil)
	require.NoError(t, err)
	assert.Zero(t, conflicts)
}
