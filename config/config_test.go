package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsaid97/go-glacier-merger/config"
	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/reconcile"
)

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, cfg.Tolerance)
	assert.Equal(t, 40, cfg.Border)
	assert.Equal(t, reconcile.AreaTrust, cfg.Area())
	assert.False(t, cfg.UseIntersects)
	assert.Equal(t, glacier.BedParabolic, cfg.DefaultBedShape())
	assert.Equal(t, 1.0, cfg.RoutingPenalty)
	assert.Equal(t, log.InfoLevel, cfg.Level())
	assert.Equal(t, reconcile.Options{AreaPolicy: reconcile.AreaTrust, Border: 40}, cfg.Reconcile())
}

func TestLoadFileEnvAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tolerance: 2.5
border: 10
area_policy: recompute
bed_shape: rectangular
workers: 3
`), 0o644))
	t.Setenv("GLACIERMERGE_BORDER", "20")

	cfg, err := config.Load(path, map[string]any{"workers": 8})
	require.NoError(t, err)

	assert.Equal(t, 2.5, cfg.Tolerance)
	assert.Equal(t, 20, cfg.Border, "environment beats the file")
	assert.Equal(t, 8, cfg.Workers, "overrides beat everything")
	assert.Equal(t, reconcile.AreaRecompute, cfg.Area())
	assert.Equal(t, glacier.BedRectangular, cfg.DefaultBedShape())
}

func TestLoadWorkingDirectoryFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "glaciermerge.yaml"), []byte("log_level: debug\n"), 0o644))
	chdir(t, dir)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, cfg.Level())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := config.Config{
		Tolerance:  1,
		AreaPolicy: "trust",
		BedShape:   "parabolic",
		LogLevel:   "info",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero tolerance", func(c *config.Config) { c.Tolerance = 0 }},
		{"negative border", func(c *config.Config) { c.Border = -1 }},
		{"negative workers", func(c *config.Config) { c.Workers = -2 }},
		{"negative penalty", func(c *config.Config) { c.RoutingPenalty = -1 }},
		{"unknown area policy", func(c *config.Config) { c.AreaPolicy = "mean" }},
		{"unknown bed shape", func(c *config.Config) { c.BedShape = "v" }},
		{"unknown log level", func(c *config.Config) { c.LogLevel = "loud" }},
		{"intersects without url", func(c *config.Config) { c.UseIntersects = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	c := valid
	c.Tolerance = 0
	c.BedShape = "v"
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tolerance")
	assert.Contains(t, err.Error(), "bed shape")
}
