package match

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yw7/sc-lesion-frequency-map/internal/models"
)

// writeFiles populates a directory with empty files of the given names
func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatalf("creating fixture %s: %v", name, err)
		}
	}
}

func testMatcher() *Matcher {
	return &Matcher{Pattern: "t2", WarpPattern: "warp_anat2template"}
}

func TestPairsSubjectPrefixedNaming(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"sub01_t2_seg.nii.gz",
		"sub01_t2_warp_anat2template.nii.gz")

	pairs, err := testMatcher().Pairs(dir, "sub01", "_seg", models.Cord)
	if err != nil {
		t.Fatalf("Pairs failed: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if got := filepath.Base(pairs[0].Mask.Path); got != "sub01_t2_seg.nii.gz" {
		t.Errorf("mask = %s, want sub01_t2_seg.nii.gz", got)
	}
	if got := filepath.Base(pairs[0].Transform.Path); got != "sub01_t2_warp_anat2template.nii.gz" {
		t.Errorf("transform = %s, want sub01_t2_warp_anat2template.nii.gz", got)
	}
}

func TestPairsBareNaming(t *testing.T) {
	// The bare form without the subject prefix is equally acceptable.
	dir := t.TempDir()
	writeFiles(t, dir,
		"t2_seg.nii",
		"t2_warp_anat2template.nii")

	pairs, err := testMatcher().Pairs(dir, "sub01", "_seg", models.Cord)
	if err != nil {
		t.Fatalf("Pairs failed: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
}

func TestPairsIgnoresOtherKinds(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"sub01_t2_seg.nii.gz",
		"sub01_t2_lesionseg.nii.gz",
		"sub01_t2_warp_anat2template.nii.gz")

	cord, err := testMatcher().Pairs(dir, "sub01", "_seg", models.Cord)
	if err != nil {
		t.Fatalf("cord Pairs failed: %v", err)
	}
	if len(cord) != 1 {
		t.Fatalf("cord: got %d pairs, want 1", len(cord))
	}

	lesion, err := testMatcher().Pairs(dir, "sub01", "_lesionseg", models.Lesion)
	if err != nil {
		t.Fatalf("lesion Pairs failed: %v", err)
	}
	if len(lesion) != 1 {
		t.Fatalf("lesion: got %d pairs, want 1", len(lesion))
	}
}

func TestPairsSubjectWideFallback(t *testing.T) {
	// No warp shares the segmentation's base name, but a single warp
	// exists in the directory: the relaxed fallback resolves it.
	dir := t.TempDir()
	writeFiles(t, dir,
		"sub01_t2_seg.nii.gz",
		"sub01_warp_anat2template.nii.gz")

	pairs, err := testMatcher().Pairs(dir, "sub01", "_seg", models.Cord)
	if err != nil {
		t.Fatalf("Pairs failed: %v", err)
	}
	if got := filepath.Base(pairs[0].Transform.Path); got != "sub01_warp_anat2template.nii.gz" {
		t.Errorf("transform = %s, want fallback warp", got)
	}
}

func TestPairsAmbiguousTransformFails(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"sub01_t2_seg.nii.gz",
		"sub01_t2_warp_anat2template.nii.gz",
		"sub01_t2_extra_warp_anat2template.nii.gz")

	_, err := testMatcher().Pairs(dir, "sub01", "_seg", models.Cord)
	var resErr *models.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("got %v, want ResolutionError", err)
	}
	if resErr.SegFile != "sub01_t2_seg.nii.gz" {
		t.Errorf("error names %s, want the segmentation file", resErr.SegFile)
	}
	if len(resErr.Candidates) != 2 {
		t.Errorf("error lists %d candidates, want 2", len(resErr.Candidates))
	}
}

func TestPairsMissingTransformFails(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "sub01_t2_seg.nii.gz")

	_, err := testMatcher().Pairs(dir, "sub01", "_seg", models.Cord)
	var resErr *models.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("got %v, want ResolutionError", err)
	}
	if len(resErr.Candidates) != 0 {
		t.Errorf("error lists %d candidates, want 0", len(resErr.Candidates))
	}
}

func TestPairsNoSegmentationsFails(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "sub01_warp_anat2template.nii.gz")

	_, err := testMatcher().Pairs(dir, "sub01", "_seg", models.Cord)
	var missErr *models.MissingInputError
	if !errors.As(err, &missErr) {
		t.Fatalf("got %v, want MissingInputError", err)
	}
	if missErr.Subject != "sub01" || missErr.Kind != models.Cord {
		t.Errorf("error identifies %s/%s, want sub01/cord", missErr.Subject, missErr.Kind)
	}
}

func TestPairsMultipleSegmentations(t *testing.T) {
	// Two acquisitions, each with its own warp resolved by base name.
	dir := t.TempDir()
	writeFiles(t, dir,
		"sub01_t2a_seg.nii.gz",
		"sub01_t2a_warp_anat2template.nii.gz",
		"sub01_t2b_seg.nii.gz",
		"sub01_t2b_warp_anat2template.nii.gz")

	m := &Matcher{Pattern: "t2[ab]", WarpPattern: "warp_anat2template"}
	pairs, err := m.Pairs(dir, "sub01", "_seg", models.Cord)
	if err != nil {
		t.Fatalf("Pairs failed: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(pairs))
	}
	for _, pair := range pairs {
		segBase := filepath.Base(pair.Mask.Path)
		warpBase := filepath.Base(pair.Transform.Path)
		if segBase[:9] != warpBase[:9] {
			t.Errorf("pair mismatch: %s resolved to %s", segBase, warpBase)
		}
	}
}

func TestSubjectResolvesBothKinds(t *testing.T) {
	dataDir := t.TempDir()
	dir := filepath.Join(dataDir, "sub01", "anat")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating fixture dir: %v", err)
	}
	writeFiles(t, dir,
		"sub01_t2_seg.nii.gz",
		"sub01_t2_lesionseg.nii.gz",
		"sub01_t2_warp_anat2template.nii.gz")

	subj, err := testMatcher().Subject(dataDir, "sub01", "anat", "_seg", "_lesionseg")
	if err != nil {
		t.Fatalf("Subject failed: %v", err)
	}
	if subj.ID != "sub01" {
		t.Errorf("ID = %s, want sub01", subj.ID)
	}
	if len(subj.Cord) != 1 || len(subj.Lesion) != 1 {
		t.Errorf("got %d cord and %d lesion pairs, want 1 and 1", len(subj.Cord), len(subj.Lesion))
	}
}
