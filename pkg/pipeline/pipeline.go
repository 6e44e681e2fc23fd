// Package pipeline computes a population lesion frequency map: the
// fraction of cohort subjects whose lesion occupies each template-space
// voxel, restricted to the spinal cord. It drives file matching,
// per-subject resampling, cohort accumulation and the final map
// derivation, failing fast on the first error so a silently missing
// subject can never bias the output.
package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/yw7/sc-lesion-frequency-map/pkg/imaging"
	"github.com/yw7/sc-lesion-frequency-map/pkg/match"
	"github.com/yw7/sc-lesion-frequency-map/pkg/volume"
)

// Params holds the pipeline configuration. These parameters control the
// input discovery, the masking policies and the output location.
type Params struct {
	// DataDir is the root directory with one subdirectory per subject
	DataDir string

	// SubjectsFile lists subject identifiers, one per line; blank lines
	// are ignored
	SubjectsFile string

	// SubjectSubdir is the per-subject subdirectory holding the
	// native-space files, e.g. "anat"
	SubjectSubdir string

	// ImagePattern is the regular expression matching the image name stem
	ImagePattern string

	// LesionSuffix and CordSuffix are the literal suffixes of the two
	// segmentation kinds
	LesionSuffix string
	CordSuffix   string

	// WarpPattern is the regular expression matching warp-field files
	WarpPattern string

	// TemplateReference is the template-space reference volume defining
	// the output grid
	TemplateReference string

	// TemplateLevels is the per-voxel vertebral level label volume
	TemplateLevels string

	// OutputFile is where the final frequency map is written
	OutputFile string

	// Overwrite forces recomputation of cached per-subject volumes
	Overwrite bool

	// CoverageMask keeps only voxels segmented as cord by every subject
	CoverageMask bool

	// LevelMin and LevelMax bound the vertebral levels kept, inclusive
	LevelMin int
	LevelMax int

	// NumCores is the number of subjects resampled concurrently
	NumCores int
}

// Pipeline computes the lesion frequency map over a subject cohort.
type Pipeline struct {
	params   *Params
	backend  imaging.Backend
	matcher  *match.Matcher
	template *volume.Volume
	levels   *volume.Volume
	freq     *volume.Volume
	summary  Summary
}

// New creates a pipeline with the provided parameters and storage
// backend.
func New(params *Params, backend imaging.Backend) *Pipeline {
	return &Pipeline{
		params:  params,
		backend: backend,
		matcher: &match.Matcher{
			Pattern:     params.ImagePattern,
			WarpPattern: params.WarpPattern,
		},
	}
}

// ReadSubjectList reads subject identifiers from a text file, one per
// line, skipping blank lines.
func ReadSubjectList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading subject list: %w", err)
	}

	var subjects []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			subjects = append(subjects, line)
		}
	}
	if len(subjects) == 0 {
		return nil, fmt.Errorf("subject list %s is empty", path)
	}
	return subjects, nil
}

// subjectResult carries one subject's template-space volumes out of the
// resampling workers.
type subjectResult struct {
	id     string
	cord   *volume.Volume
	lesion *volume.Volume
	err    error
}

// processSubject resolves and resamples one subject.
func (p *Pipeline) processSubject(id string) subjectResult {
	subj, err := p.matcher.Subject(p.params.DataDir, id, p.params.SubjectSubdir,
		p.params.CordSuffix, p.params.LesionSuffix)
	if err != nil {
		return subjectResult{id: id, err: err}
	}

	cord, lesion, err := p.resampleSubject(subj)
	return subjectResult{id: id, cord: cord, lesion: lesion, err: err}
}

// foldSubjects resamples every subject and folds the results into the
// cohort sums. With NumCores <= 1 subjects are processed strictly in
// list order and the loop aborts on the first error. With more cores
// the resampling runs concurrently; the fold itself stays serialized in
// the collector loop, which is enough because accumulation is
// commutative, and the first error wins.
func (p *Pipeline) foldSubjects(subjects []string, sum *CohortSum) error {
	if p.params.NumCores <= 1 {
		for _, id := range subjects {
			res := p.processSubject(id)
			if res.err != nil {
				return res.err
			}
			if err := sum.Accumulate(res.cord, res.lesion); err != nil {
				return fmt.Errorf("subject %s: %w", res.id, err)
			}
			fmt.Printf("  folded subject %s (%d/%d)\n", res.id, sum.Subjects(), len(subjects))
		}
		return nil
	}

	results := make(chan subjectResult)
	sem := make(chan struct{}, p.params.NumCores)
	for _, id := range subjects {
		go func(id string) {
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- p.processSubject(id)
		}(id)
	}

	var firstErr error
	for range subjects {
		res := <-results
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		if err := sum.Accumulate(res.cord, res.lesion); err != nil {
			firstErr = fmt.Errorf("subject %s: %w", res.id, err)
			continue
		}
		fmt.Printf("  folded subject %s (%d/%d)\n", res.id, sum.Subjects(), len(subjects))
	}
	return firstErr
}

// Run executes the whole pipeline: subject discovery, per-subject
// resampling, cohort accumulation, frequency map derivation and output.
func (p *Pipeline) Run() error {
	fmt.Println("Step 1: Reading subject list...")
	subjects, err := ReadSubjectList(p.params.SubjectsFile)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d subjects\n", len(subjects))

	fmt.Println("Step 2: Loading template resources...")
	p.template, err = p.backend.Load(p.params.TemplateReference)
	if err != nil {
		return fmt.Errorf("loading template reference: %w", err)
	}
	p.levels, err = p.backend.Load(p.params.TemplateLevels)
	if err != nil {
		return fmt.Errorf("loading template levels: %w", err)
	}
	if !p.levels.SameShape(p.template) {
		return fmt.Errorf("template level volume grid does not match reference grid")
	}

	fmt.Println("Step 3: Resampling subjects into template space...")
	sum := NewCohortSum(p.template)
	if err := p.foldSubjects(subjects, sum); err != nil {
		return err
	}

	fmt.Println("Step 4: Building frequency map...")
	p.freq, err = BuildFrequencyMap(sum, p.levels, p.params.CoverageMask,
		p.params.LevelMin, p.params.LevelMax)
	if err != nil {
		return err
	}

	fmt.Println("Step 5: Writing output volume...")
	if err := p.backend.Save(p.params.OutputFile, p.freq); err != nil {
		return fmt.Errorf("writing output %s: %w", p.params.OutputFile, err)
	}

	p.summary = Summarize(p.freq)
	return nil
}

// FrequencyMap returns the computed map after a successful Run.
func (p *Pipeline) FrequencyMap() *volume.Volume {
	return p.freq
}

// GetSummary returns the run summary statistics after a successful Run.
func (p *Pipeline) GetSummary() Summary {
	return p.summary
}
