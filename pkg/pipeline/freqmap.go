package pipeline

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/yw7/sc-lesion-frequency-map/pkg/volume"
)

// BuildFrequencyMap derives the final map from the cohort sums:
//
//  1. ratio = lesionSum / cordSum voxel-wise, with division by zero
//     (including 0/0) defined as 0
//  2. when coverage masking is on, keep only voxels segmented as cord by
//     every one of the folded subjects
//  3. keep only voxels whose template level label lies in
//     [levelMin, levelMax] inclusive
//
// Without the coverage mask, a voxel's value is the lesion fraction
// among the subjects whose cord actually covers it.
func BuildFrequencyMap(sum *CohortSum, levels *volume.Volume, coverageMask bool, levelMin, levelMax int) (*volume.Volume, error) {
	if err := sum.Check(); err != nil {
		return nil, err
	}

	ratio, err := volume.Div(sum.Lesion, sum.Cord)
	if err != nil {
		return nil, fmt.Errorf("building frequency map: %w", err)
	}

	if coverageMask {
		cover := sum.Cord.Threshold(float64(sum.Subjects()), math.Inf(1)).Binarize(0.5)
		if err := ratio.Mul(cover); err != nil {
			return nil, fmt.Errorf("applying coverage mask: %w", err)
		}
	}

	if !levels.SameShape(ratio) {
		return nil, fmt.Errorf("level volume grid %dx%dx%d does not match template grid %dx%dx%d",
			levels.Width, levels.Height, levels.Depth, ratio.Width, ratio.Height, ratio.Depth)
	}
	region := levels.Threshold(float64(levelMin), float64(levelMax)).Binarize(0.5)
	if err := ratio.Mul(region); err != nil {
		return nil, fmt.Errorf("applying level mask: %w", err)
	}

	return ratio, nil
}

// Summary holds descriptive statistics of the final frequency map,
// reported at the end of a run.
type Summary struct {
	// NonzeroVoxels is the number of voxels with frequency > 0
	NonzeroVoxels int

	// MeanFrequency is the mean over nonzero voxels
	MeanFrequency float64

	// MaxFrequency is the largest frequency in the map
	MaxFrequency float64
}

// Summarize computes the run summary from the final map.
func Summarize(freq *volume.Volume) Summary {
	var nonzero []float64
	maxFreq := 0.0
	for _, v := range freq.Data {
		if v > 0 {
			nonzero = append(nonzero, v)
		}
		if v > maxFreq {
			maxFreq = v
		}
	}

	s := Summary{NonzeroVoxels: len(nonzero), MaxFrequency: maxFreq}
	if len(nonzero) > 0 {
		s.MeanFrequency = stat.Mean(nonzero, nil)
	}
	return s
}
