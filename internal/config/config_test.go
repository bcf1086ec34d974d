package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chromavue.toml")
	content := `
port = 9000
grid_size = 32
pair_window_ms = 200

[export]
enabled = false
root_dir = "out"

[qc]
tilt_max_deg = 15.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 32, cfg.GridSize)
	assert.Equal(t, int64(200), cfg.PairWindowMs)
	assert.False(t, cfg.Export.Enabled)
	assert.Equal(t, 15.0, cfg.QC.TiltMaxDeg)
	// untouched values keep their defaults
	assert.Equal(t, Default().Endpoint, cfg.Endpoint)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"grid size", func(c *Config) { c.GridSize = -1 }},
		{"pair window", func(c *Config) { c.PairWindowMs = 0 }},
		{"endpoint", func(c *Config) { c.Endpoint = ""; c.Simulate = false }},
		{"export dir", func(c *Config) { c.Export.RootDir = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAllowsSimulateWithoutEndpoint(t *testing.T) {
	cfg := Default()
	cfg.Endpoint = ""
	cfg.Simulate = true
	assert.NoError(t, cfg.Validate())
}
