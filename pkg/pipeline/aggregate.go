package pipeline

import (
	"github.com/yw7/sc-lesion-frequency-map/internal/models"
	"github.com/yw7/sc-lesion-frequency-map/pkg/volume"
)

// CohortSum holds the two running accumulators the cohort folds into:
// per-voxel counts of subjects whose registered cord (resp. lesion) mask
// covers that voxel. The value is owned by the pipeline and threaded
// explicitly through the fold; there is no ambient shared state.
type CohortSum struct {
	// Cord accumulates the template-space cord masks
	Cord *volume.Volume

	// Lesion accumulates the consistency-corrected lesion masks
	Lesion *volume.Volume

	// cordCount and lesionCount track how many subjects were folded
	// into each accumulator
	cordCount   int
	lesionCount int
}

// NewCohortSum creates zero accumulators on the given template grid.
func NewCohortSum(grid *volume.Volume) *CohortSum {
	return &CohortSum{
		Cord:   volume.ZerosLike(grid),
		Lesion: volume.ZerosLike(grid),
	}
}

// Accumulate folds one subject's template-space mask pair into the
// running sums. Accumulation is a pure voxel-wise addition, so the fold
// is commutative and the subject order cannot change the final sums.
func (s *CohortSum) Accumulate(cord, lesion *volume.Volume) error {
	if err := s.Cord.Add(cord); err != nil {
		return err
	}
	s.cordCount++

	if err := s.Lesion.Add(lesion); err != nil {
		return err
	}
	s.lesionCount++
	return nil
}

// Subjects returns the number of subjects folded so far.
func (s *CohortSum) Subjects() int {
	return s.cordCount
}

// Check verifies that the cohort actually contributed data to both
// accumulators. An empty accumulator after the fold is fatal: a
// frequency map derived from it would be meaningless.
func (s *CohortSum) Check() error {
	if s.cordCount == 0 {
		return &models.MissingInputError{Kind: models.Cord, Detail: "empty cohort"}
	}
	if s.lesionCount == 0 {
		return &models.MissingInputError{Kind: models.Lesion, Detail: "empty cohort"}
	}
	return nil
}
