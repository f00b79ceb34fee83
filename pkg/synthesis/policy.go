package synthesis

import (
	"github.com/cockroachdb/errors"
)

// priorityRank validates the caller-supplied ordering against the
// segmentation set and returns organ id -> rank (lower wins).
func priorityRank(segs SegmentationSet, priority []int) (map[int]int, error) {
	rank := make(map[int]int, len(priority))
	for i, id := range priority {
		if _, dup := rank[id]; dup {
			return nil, errors.Newf("organ %d listed twice in priority ordering", id)
		}
		rank[id] = i
	}
	for _, o := range segs {
		if _, ok := rank[o.ID]; !ok {
			return nil, errors.Newf("organ %d missing from priority ordering", o.ID)
		}
	}
	return rank, nil
}

// ResolvePriority enforces mutual exclusivity over a warped
// segmentation set. Organ masks warped independently can both claim a
// voxel near their shared boundary; the organ appearing earliest in the
// priority ordering keeps the voxel and every other claim there is
// cleared in place.
//
// The returned count is the number of cleared claims, aggregated by the
// caller into the once-per-run conflict report.
func ResolvePriority(segs SegmentationSet, priority []int) (conflicts int, err error) {
	if len(segs) == 0 {
		return 0, nil
	}
	rank, err := priorityRank(segs, priority)
	if err != nil {
		return 0, err
	}

	ordered := make([]Organ, len(segs))
	copy(ordered, segs)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && rank[ordered[j].ID] < rank[ordered[j-1].ID]; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	nvox := ordered[0].Mask.Grid.NumVoxels()
	claimed := make([]bool, nvox)
	for _, o := range ordered {
		data := o.Mask.Data
		for v := 0; v < nvox; v++ {
			if data[v] == 0 {
				continue
			}
			if claimed[v] {
				data[v] = 0
				conflicts++
				continue
			}
			claimed[v] = true
		}
	}
	return conflicts, nil
}
