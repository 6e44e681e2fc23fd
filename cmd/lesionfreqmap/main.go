package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yw7/sc-lesion-frequency-map/pkg/config"
	"github.com/yw7/sc-lesion-frequency-map/pkg/imaging"
	"github.com/yw7/sc-lesion-frequency-map/pkg/pipeline"
)

func main() {
	defaults := config.DefaultConfig()

	// Parse command line arguments
	configPath := flag.String("config", "", "Optional YAML configuration file")
	dataDir := flag.String("data", "", "Root directory with one subdirectory per subject")
	subjectsFile := flag.String("subjects", "", "Text file listing subject identifiers, one per line")
	subdir := flag.String("subdir", defaults.Paths.SubjectSubdir, "Per-subject subdirectory with native-space files")
	pattern := flag.String("pattern", defaults.Matching.ImagePattern, "Regular expression matching the image name stem")
	lesionSuffix := flag.String("lesion-suffix", defaults.Matching.LesionSuffix, "Suffix of lesion segmentation files")
	cordSuffix := flag.String("cord-suffix", defaults.Matching.CordSuffix, "Suffix of cord segmentation files")
	warpPattern := flag.String("warp-pattern", defaults.Matching.WarpPattern, "Regular expression matching warp-field files")
	output := flag.String("output", defaults.Paths.Output, "Output frequency map path")
	overwrite := flag.Int("overwrite", 0, "Recompute cached per-subject volumes (0/1)")
	coverage := flag.Int("coverage-mask", 1, "Keep only voxels with cord coverage from every subject (0/1)")
	templatePrefix := flag.String("template", defaults.Paths.TemplatePrefix, "Template path prefix (expects <prefix>_t2.nii.gz and <prefix>_levels.nii.gz)")
	levelMin := flag.Int("level-min", defaults.Processing.LevelMin, "Lowest vertebral level kept in the output")
	levelMax := flag.Int("level-max", defaults.Processing.LevelMax, "Highest vertebral level kept in the output")
	numCores := flag.Int("cores", defaults.Processing.NumCores, "Number of subjects resampled concurrently (default: all available cores)")
	verbose := flag.Bool("verbose", defaults.Output.Verbose, "Enable per-file diagnostic logging")
	flag.Parse()

	// Load optional config file; explicitly passed flags win below
	cfg := defaults
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	applyString := func(name string, val *string, dst *string) {
		if setFlags[name] || *dst == "" {
			*dst = *val
		}
	}
	applyString("data", dataDir, &cfg.Paths.DataDir)
	applyString("subjects", subjectsFile, &cfg.Paths.SubjectsFile)
	applyString("subdir", subdir, &cfg.Paths.SubjectSubdir)
	applyString("pattern", pattern, &cfg.Matching.ImagePattern)
	applyString("lesion-suffix", lesionSuffix, &cfg.Matching.LesionSuffix)
	applyString("cord-suffix", cordSuffix, &cfg.Matching.CordSuffix)
	applyString("warp-pattern", warpPattern, &cfg.Matching.WarpPattern)
	applyString("template", templatePrefix, &cfg.Paths.TemplatePrefix)
	applyString("output", output, &cfg.Paths.Output)
	if setFlags["overwrite"] {
		cfg.Processing.Overwrite = *overwrite != 0
	}
	if setFlags["coverage-mask"] {
		cfg.Processing.CoverageMask = *coverage != 0
	}
	if setFlags["level-min"] {
		cfg.Processing.LevelMin = *levelMin
	}
	if setFlags["level-max"] {
		cfg.Processing.LevelMax = *levelMax
	}
	if setFlags["cores"] {
		cfg.Processing.NumCores = *numCores
	}
	if setFlags["verbose"] {
		cfg.Output.Verbose = *verbose
	}

	// Validate inputs
	if cfg.Paths.DataDir == "" || cfg.Paths.SubjectsFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	if cfg.Output.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	fmt.Println("================================")
	fmt.Println("SPINAL CORD LESION FREQUENCY MAP")
	fmt.Println("================================")

	params := &pipeline.Params{
		DataDir:           cfg.Paths.DataDir,
		SubjectsFile:      cfg.Paths.SubjectsFile,
		SubjectSubdir:     cfg.Paths.SubjectSubdir,
		ImagePattern:      cfg.Matching.ImagePattern,
		LesionSuffix:      cfg.Matching.LesionSuffix,
		CordSuffix:        cfg.Matching.CordSuffix,
		WarpPattern:       cfg.Matching.WarpPattern,
		TemplateReference: cfg.TemplateReference(),
		TemplateLevels:    cfg.TemplateLevels(),
		OutputFile:        cfg.Paths.Output,
		Overwrite:         cfg.Processing.Overwrite,
		CoverageMask:      cfg.Processing.CoverageMask,
		LevelMin:          cfg.Processing.LevelMin,
		LevelMax:          cfg.Processing.LevelMax,
		NumCores:          cfg.Processing.NumCores,
	}

	p := pipeline.New(params, imaging.NewDisk())

	fmt.Println("Starting lesion frequency map computation...")
	startTime := time.Now()
	if err := p.Run(); err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	processingTime := time.Since(startTime)

	summary := p.GetSummary()
	fmt.Printf("\nCompleted successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Output frequency map saved to: %s\n\n", params.OutputFile)

	fmt.Printf("Frequency map summary:\n")
	fmt.Printf("======================\n")
	fmt.Printf("Voxels with nonzero frequency: %d\n", summary.NonzeroVoxels)
	fmt.Printf("Mean frequency (nonzero voxels): %.4f\n", summary.MeanFrequency)
	fmt.Printf("Maximum frequency: %.4f\n", summary.MaxFrequency)
	fmt.Printf("Vertebral levels kept: %d-%d\n", params.LevelMin, params.LevelMax)
	if params.CoverageMask {
		fmt.Println("Coverage mask: enabled (full-cohort cord coverage required)")
	} else {
		fmt.Println("Coverage mask: disabled (frequency among covering subjects)")
	}
}
