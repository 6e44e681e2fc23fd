package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "anat", cfg.Paths.SubjectSubdir)
	require.Equal(t, "t2", cfg.Matching.ImagePattern)
	require.Equal(t, "_lesionseg", cfg.Matching.LesionSuffix)
	require.Equal(t, "_seg", cfg.Matching.CordSuffix)
	require.True(t, cfg.Processing.CoverageMask)
	require.False(t, cfg.Processing.Overwrite)
	require.Equal(t, 1, cfg.Processing.LevelMin)
	require.Equal(t, 7, cfg.Processing.LevelMax)
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Paths.DataDir = "/data/cohort"
	cfg.Matching.ImagePattern = "t[12]"
	cfg.Processing.LevelMax = 12
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestLoadConfigPartialOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := "matching:\n  imagePattern: t1\nprocessing:\n  levelMax: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(partial), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "t1", cfg.Matching.ImagePattern)
	require.Equal(t, 3, cfg.Processing.LevelMax)
	// Untouched keys keep their defaults.
	require.Equal(t, "_seg", cfg.Matching.CordSuffix)
	require.Equal(t, 1, cfg.Processing.LevelMin)
}

func TestTemplatePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.TemplatePrefix = "/templates/PAM50"

	require.Equal(t, "/templates/PAM50_t2.nii.gz", cfg.TemplateReference())
	require.Equal(t, "/templates/PAM50_levels.nii.gz", cfg.TemplateLevels())
}
