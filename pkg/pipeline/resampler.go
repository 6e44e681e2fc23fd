package pipeline

import (
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/yw7/sc-lesion-frequency-map/internal/models"
	"github.com/yw7/sc-lesion-frequency-map/pkg/resample"
	"github.com/yw7/sc-lesion-frequency-map/pkg/volume"
)

// cachePath names a subject's persisted template-space volume. The name
// is deterministic so a rerun with overwrite disabled can pick the file
// up again.
func cachePath(subj *models.Subject, kind models.MaskKind) string {
	return filepath.Join(subj.Dir, fmt.Sprintf("%s_%s_template.nii.gz", subj.ID, kind))
}

// mergePairs loads one kind's matched segmentation/transform pairs and
// merges them into a single template-space volume.
func (p *Pipeline) mergePairs(pairs []models.MatchedPair, interp resample.Interpolation) (*volume.Volume, error) {
	srcs := make([]*volume.Volume, len(pairs))
	transforms := make([]resample.Transform, len(pairs))
	for i, pair := range pairs {
		src, err := p.backend.Load(pair.Mask.Path)
		if err != nil {
			return nil, fmt.Errorf("loading segmentation %s: %w", pair.Mask.Path, err)
		}
		t, err := p.backend.LoadTransform(pair.Transform.Path)
		if err != nil {
			return nil, fmt.Errorf("loading transform %s: %w", pair.Transform.Path, err)
		}
		srcs[i] = src
		transforms[i] = t
	}
	return resample.Merge(srcs, transforms, p.template, interp)
}

// resampleSubject produces a subject's template-space cord and lesion
// volumes. Cord masks are resampled with nearest-neighbor interpolation
// so they stay binary; lesion masks use trilinear interpolation and are
// then multiplied voxel-wise by the cord volume, so warp-induced lesion
// mass outside the subject's own registered cord is zeroed.
//
// When both cache files already exist and overwrite is disabled, the
// stored volumes are reused as-is and nothing is recomputed.
func (p *Pipeline) resampleSubject(subj *models.Subject) (cord, lesion *volume.Volume, err error) {
	cordPath := cachePath(subj, models.Cord)
	lesionPath := cachePath(subj, models.Lesion)

	if !p.params.Overwrite && p.backend.Exists(cordPath) && p.backend.Exists(lesionPath) {
		log.WithFields(log.Fields{
			"subject": subj.ID,
			"cord":    cordPath,
			"lesion":  lesionPath,
		}).Debug("pipeline: template-space cache hit")

		cord, err = p.backend.Load(cordPath)
		if err != nil {
			return nil, nil, fmt.Errorf("subject %s: reading cached cord volume: %w", subj.ID, err)
		}
		lesion, err = p.backend.Load(lesionPath)
		if err != nil {
			return nil, nil, fmt.Errorf("subject %s: reading cached lesion volume: %w", subj.ID, err)
		}
		return cord, lesion, nil
	}

	cord, err = p.mergePairs(subj.Cord, resample.NearestNeighbor)
	if err != nil {
		return nil, nil, fmt.Errorf("subject %s: resampling cord masks: %w", subj.ID, err)
	}
	lesion, err = p.mergePairs(subj.Lesion, resample.Trilinear)
	if err != nil {
		return nil, nil, fmt.Errorf("subject %s: resampling lesion masks: %w", subj.ID, err)
	}

	// Consistency correction: no lesion voxel may survive outside the
	// subject's own registered cord.
	if err = lesion.Mul(cord); err != nil {
		return nil, nil, fmt.Errorf("subject %s: clipping lesion to cord: %w", subj.ID, err)
	}

	if err = p.backend.Save(cordPath, cord); err != nil {
		return nil, nil, fmt.Errorf("subject %s: saving cord volume: %w", subj.ID, err)
	}
	if err = p.backend.Save(lesionPath, lesion); err != nil {
		return nil, nil, fmt.Errorf("subject %s: saving lesion volume: %w", subj.ID, err)
	}
	return cord, lesion, nil
}
