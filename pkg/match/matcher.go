// Package match discovers each subject's segmentation files and pairs
// every one of them with its uniquely corresponding warp field. Matching
// is regexp-based and deliberately strict: a segmentation with zero or
// several candidate transforms is a fatal configuration error, never a
// guess.
package match

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/yw7/sc-lesion-frequency-map/internal/models"
)

// niftiExt matches the accepted volume file extensions.
const niftiExt = `(?:\.nii(?:\.gz)?)`

// Matcher resolves segmentation/transform pairs inside a subject
// directory. Pattern and WarpPattern are regular expressions; the
// per-kind suffixes are literal.
type Matcher struct {
	// Pattern matches the image name stem, e.g. `t2`
	Pattern string

	// WarpPattern matches warp-field file names, e.g. `warp_anat2template`
	WarpPattern string
}

// stripExt removes a .nii or .nii.gz extension.
func stripExt(name string) string {
	name = strings.TrimSuffix(name, ".gz")
	return strings.TrimSuffix(name, ".nii")
}

// listDir returns the file names in dir in sorted order.
func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading subject directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Pairs discovers the segmentation files of one mask kind in dir and
// resolves a transform for each. A segmentation file name must match
// (<subject>_)?<pattern><suffix> with a NIfTI extension; both the
// subject-prefixed and the bare form are accepted, with no precedence
// between them.
func (m *Matcher) Pairs(dir, subject, suffix string, kind models.MaskKind) ([]models.MatchedPair, error) {
	names, err := listDir(dir)
	if err != nil {
		return nil, err
	}

	segRe, err := regexp.Compile(
		`^(?:` + regexp.QuoteMeta(subject) + `_)?(?:` + m.Pattern + `)` + regexp.QuoteMeta(suffix) + niftiExt + `$`)
	if err != nil {
		return nil, fmt.Errorf("invalid image pattern %q: %w", m.Pattern, err)
	}
	warpRe, err := regexp.Compile(m.WarpPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid warp pattern %q: %w", m.WarpPattern, err)
	}

	var segs []string
	for _, name := range names {
		if segRe.MatchString(name) {
			segs = append(segs, name)
		}
	}
	if len(segs) == 0 {
		return nil, &models.MissingInputError{
			Subject: subject,
			Kind:    kind,
			Detail:  fmt.Sprintf("pattern %q, suffix %q in %s", m.Pattern, suffix, dir),
		}
	}

	pairs := make([]models.MatchedPair, 0, len(segs))
	for _, seg := range segs {
		warp, err := m.resolveTransform(names, subject, seg, suffix, warpRe)
		if err != nil {
			return nil, err
		}

		log.WithFields(log.Fields{
			"subject": subject,
			"kind":    kind,
			"seg":     seg,
			"warp":    warp,
		}).Debug("match: pair resolved")

		pairs = append(pairs, models.MatchedPair{
			Mask:      models.MaskInstance{Path: filepath.Join(dir, seg), Kind: kind},
			Transform: models.TransformRef{Path: filepath.Join(dir, warp)},
		})
	}
	return pairs, nil
}

// resolveTransform finds the single warp field belonging to one
// segmentation file. The primary search looks for names that start with
// the segmentation's base name (suffix and extension stripped) and match
// the warp pattern; if that finds nothing, a relaxed subject-wide
// fallback accepts any name in the directory matching the warp pattern.
// Whichever search produced candidates must produce exactly one.
func (m *Matcher) resolveTransform(names []string, subject, seg, suffix string, warpRe *regexp.Regexp) (string, error) {
	base := strings.TrimSuffix(stripExt(seg), suffix)
	primaryRe, err := regexp.Compile(`^` + regexp.QuoteMeta(base) + `.*(?:` + m.WarpPattern + `)`)
	if err != nil {
		return "", fmt.Errorf("invalid warp pattern %q: %w", m.WarpPattern, err)
	}

	var candidates []string
	for _, name := range names {
		if name != seg && primaryRe.MatchString(name) {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		// Relaxed fallback: any warp-pattern match anywhere in the
		// subject directory.
		for _, name := range names {
			if name != seg && warpRe.MatchString(name) {
				candidates = append(candidates, name)
			}
		}
	}

	if len(candidates) != 1 {
		return "", &models.ResolutionError{
			Subject:    subject,
			SegFile:    seg,
			Candidates: candidates,
		}
	}
	return candidates[0], nil
}

// Subject resolves all of one subject's inputs: the matched cord and
// lesion pairs under dataDir/<id>/<subdir>.
func (m *Matcher) Subject(dataDir, id, subdir, cordSuffix, lesionSuffix string) (*models.Subject, error) {
	dir := filepath.Join(dataDir, id, subdir)

	cord, err := m.Pairs(dir, id, cordSuffix, models.Cord)
	if err != nil {
		return nil, err
	}
	lesion, err := m.Pairs(dir, id, lesionSuffix, models.Lesion)
	if err != nil {
		return nil, err
	}

	return &models.Subject{ID: id, Dir: dir, Cord: cord, Lesion: lesion}, nil
}
