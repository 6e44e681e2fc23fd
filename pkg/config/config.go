// Package config provides configuration loading and management for the
// lesion frequency map pipeline. It handles loading configuration from
// YAML files and provides default values matching the common
// spinal-cord template layout.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Paths groups the input and output locations
	Paths struct {
		// DataDir is the root directory holding one subdirectory per subject
		DataDir string `yaml:"dataDir"`

		// SubjectsFile is the text file listing subject identifiers, one per line
		SubjectsFile string `yaml:"subjectsFile"`

		// SubjectSubdir is the per-subject subdirectory holding native-space files
		SubjectSubdir string `yaml:"subjectSubdir"`

		// TemplatePrefix locates the template resources; the reference
		// volume and the level labels are <prefix>_t2.nii.gz and
		// <prefix>_levels.nii.gz
		TemplatePrefix string `yaml:"templatePrefix"`

		// Output is the path of the final frequency map volume
		Output string `yaml:"output"`
	} `yaml:"paths"`

	// Matching groups the file discovery parameters
	Matching struct {
		// ImagePattern is the regular expression matching the image name stem
		ImagePattern string `yaml:"imagePattern"`

		// LesionSuffix is the literal suffix of lesion segmentation files
		LesionSuffix string `yaml:"lesionSuffix"`

		// CordSuffix is the literal suffix of cord segmentation files
		CordSuffix string `yaml:"cordSuffix"`

		// WarpPattern is the regular expression matching warp-field files
		WarpPattern string `yaml:"warpPattern"`
	} `yaml:"matching"`

	// Processing groups the pipeline behavior switches
	Processing struct {
		// Overwrite forces recomputation of per-subject template-space
		// volumes even when cached outputs already exist
		Overwrite bool `yaml:"overwrite"`

		// CoverageMask restricts the output to voxels segmented as cord
		// by every subject in the cohort
		CoverageMask bool `yaml:"coverageMask"`

		// LevelMin and LevelMax bound the vertebral-level range kept in
		// the output, inclusive
		LevelMin int `yaml:"levelMin"`
		LevelMax int `yaml:"levelMax"`

		// NumCores is the number of subjects resampled concurrently;
		// 1 reproduces strictly sequential processing
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose enables per-file diagnostic logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Paths.SubjectSubdir = "anat"
	cfg.Paths.TemplatePrefix = "PAM50"
	cfg.Paths.Output = "lesion_frequency_map.nii.gz"

	cfg.Matching.ImagePattern = "t2"
	cfg.Matching.LesionSuffix = "_lesionseg"
	cfg.Matching.CordSuffix = "_seg"
	cfg.Matching.WarpPattern = "warp_anat2template"

	cfg.Processing.Overwrite = false
	cfg.Processing.CoverageMask = true
	cfg.Processing.LevelMin = 1
	cfg.Processing.LevelMax = 7 // cervical levels by default
	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// TemplateReference returns the path of the template reference volume.
func (c *Config) TemplateReference() string {
	return c.Paths.TemplatePrefix + "_t2.nii.gz"
}

// TemplateLevels returns the path of the template level-label volume.
func (c *Config) TemplateLevels() string {
	return c.Paths.TemplatePrefix + "_levels.nii.gz"
}
