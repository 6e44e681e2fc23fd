package pipeline

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yw7/sc-lesion-frequency-map/pkg/imaging"
	"github.com/yw7/sc-lesion-frequency-map/pkg/nifti"
	"github.com/yw7/sc-lesion-frequency-map/pkg/volume"
)

const identityAffine = "1 0 0 0\n0 1 0 0\n0 0 1 0\n0 0 0 1\n"

// diskFixture lays out a complete on-disk dataset: NIfTI masks,
// text-file affine warps, template resources and a subject list.
func diskFixture(t *testing.T) *Params {
	t.Helper()
	tmp := t.TempDir()

	writeVol := func(path string, data ...float64) {
		v := volume.New(gridW, gridH, gridD)
		copy(v.Data, data)
		if err := nifti.Write(path, v); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}

	writeVol(filepath.Join(tmp, "PAM50_t2.nii.gz"), 0, 0, 0)
	writeVol(filepath.Join(tmp, "PAM50_levels.nii.gz"), 1, 3, 8)

	subjectsFile := filepath.Join(tmp, "subjects.txt")
	if err := os.WriteFile(subjectsFile, []byte("subA\nsubB\n"), 0644); err != nil {
		t.Fatalf("writing subject list: %v", err)
	}

	dataDir := filepath.Join(tmp, "data")
	addSubject := func(id string, cord, lesion []float64) {
		dir := filepath.Join(dataDir, id, "anat")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("creating subject dir: %v", err)
		}
		writeVol(filepath.Join(dir, id+"_t2_seg.nii.gz"), cord...)
		writeVol(filepath.Join(dir, id+"_t2_lesionseg.nii.gz"), lesion...)
		warp := filepath.Join(dir, id+"_t2_warp_anat2template.txt")
		if err := os.WriteFile(warp, []byte(identityAffine), 0644); err != nil {
			t.Fatalf("writing warp: %v", err)
		}
	}
	addSubject("subA", []float64{1, 1, 1}, []float64{1, 1, 1})
	addSubject("subB", []float64{1, 0, 1}, []float64{0, 0, 1})

	return &Params{
		DataDir:           dataDir,
		SubjectsFile:      subjectsFile,
		SubjectSubdir:     "anat",
		ImagePattern:      "t2",
		LesionSuffix:      "_lesionseg",
		CordSuffix:        "_seg",
		WarpPattern:       "warp_anat2template",
		TemplateReference: filepath.Join(tmp, "PAM50_t2.nii.gz"),
		TemplateLevels:    filepath.Join(tmp, "PAM50_levels.nii.gz"),
		OutputFile:        filepath.Join(tmp, "lfm.nii.gz"),
		CoverageMask:      true,
		LevelMin:          1,
		LevelMax:          7,
		NumCores:          1,
	}
}

func TestDiskEndToEnd(t *testing.T) {
	params := diskFixture(t)

	p := New(params, imaging.NewDisk())
	if err := p.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out, err := nifti.Read(params.OutputFile)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if math.Abs(out.Data[0]-0.5) > 1e-6 {
		t.Errorf("freq[0] = %v, want 0.5", out.Data[0])
	}
	if out.Data[1] != 0 || out.Data[2] != 0 {
		t.Errorf("masked voxels = %v, %v, want 0, 0", out.Data[1], out.Data[2])
	}
}

func TestDiskCacheFilesByteIdenticalAcrossRuns(t *testing.T) {
	params := diskFixture(t)

	if err := New(params, imaging.NewDisk()).Run(); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	cachePaths := []string{
		filepath.Join(params.DataDir, "subA", "anat", "subA_cord_template.nii.gz"),
		filepath.Join(params.DataDir, "subA", "anat", "subA_lesion_template.nii.gz"),
		filepath.Join(params.DataDir, "subB", "anat", "subB_cord_template.nii.gz"),
		filepath.Join(params.DataDir, "subB", "anat", "subB_lesion_template.nii.gz"),
	}
	before := make(map[string][]byte)
	for _, path := range cachePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading cache file %s: %v", path, err)
		}
		before[path] = data
	}

	if err := New(params, imaging.NewDisk()).Run(); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	for _, path := range cachePaths {
		after, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("re-reading cache file %s: %v", path, err)
		}
		if diff := cmp.Diff(before[path], after); diff != "" {
			t.Errorf("cache file %s changed on second run (-before +after):\n%s", path, diff)
		}
	}
}
