package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.Synthesis.NumPhases)
	assert.Greater(t, cfg.Synthesis.Parallelism, 0)
	assert.Equal(t, "source-minimum", cfg.Synthesis.FillMode)
	assert.Equal(t, 4, cfg.Synthesis.SmoothingWindow)
	assert.Equal(t, "phantom_series", cfg.Output.Directory)
	assert.False(t, cfg.Output.SaveFields)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phantom4d.yaml")
	content := `
synthesis:
  numPhases: 6
  fillMode: explicit
  fillValue: -1000
  organPriority: [3, 1, 2]
output:
  directory: out
  saveFields: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Synthesis.NumPhases)
	assert.Equal(t, "explicit", cfg.Synthesis.FillMode)
	assert.Equal(t, -1000.0, cfg.Synthesis.FillValue)
	assert.Equal(t, []int{3, 1, 2}, cfg.Synthesis.OrganPriority)
	assert.Equal(t, "out", cfg.Output.Directory)
	assert.True(t, cfg.Output.SaveFields)

	// Unset keys keep their defaults.
	assert.Equal(t, 4, cfg.Synthesis.SmoothingWindow)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("synthesis: [not a mapping"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "phantom4d.yaml")

	cfg := DefaultConfig()
	cfg.Synthesis.NumPhases = 8
	cfg.Synthesis.OrganPriority = []int{5, 9}
	cfg.Output.Verbose = false
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phantom4d.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), loaded)
}
