// Package config loads and validates the application configuration. Values
// come from an optional TOML file layered under command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Export controls the durable session export.
type Export struct {
	Enabled   bool   `toml:"enabled"`
	AutoStart bool   `toml:"auto_start"`
	RootDir   string `toml:"root_dir"`
	CSV       bool   `toml:"csv"`
}

// QC holds the acceptance windows behind the per-frame QC flags.
type QC struct {
	DistanceMinMm float64 `toml:"distance_min_mm"`
	DistanceMaxMm float64 `toml:"distance_max_mm"`
	TiltMaxDeg    float64 `toml:"tilt_max_deg"`
	SaturationMax float64 `toml:"saturation_max"`
}

// Config is the full application configuration.
type Config struct {
	Port           int     `toml:"port"`
	Endpoint       string  `toml:"endpoint"`
	GridSize       int     `toml:"grid_size"`
	PairWindowMs   int64   `toml:"pair_window_ms"`
	KernelParallel bool    `toml:"kernel_parallel"`
	KernelWorkers  int     `toml:"kernel_workers"`
	Simulate       bool    `toml:"simulate"`
	SimWidth       int     `toml:"sim_width"`
	SimHeight      int     `toml:"sim_height"`
	SimRate        float64 `toml:"sim_rate"`
	UIRateMs       int     `toml:"ui_rate_ms"`
	IngestLogEvery int     `toml:"ingest_log_every"`
	IngestFallback bool    `toml:"ingest_fallback"`
	Debug          bool    `toml:"debug"`
	Export         Export  `toml:"export"`
	QC             QC      `toml:"qc"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:           8888,
		Endpoint:       "tcp://localhost:31001",
		GridSize:       64,
		PairWindowMs:   120,
		KernelParallel: true,
		KernelWorkers:  0, // GOMAXPROCS
		SimWidth:       256,
		SimHeight:      256,
		SimRate:        30,
		UIRateMs:       1000,
		IngestLogEvery: 100,
		IngestFallback: true,
		Export: Export{
			Enabled:   true,
			AutoStart: true,
			RootDir:   "sessions",
			CSV:       true,
		},
		QC: QC{
			DistanceMinMm: 150,
			DistanceMaxMm: 300,
			TiltMaxDeg:    10,
			SaturationMax: 0.95,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// path is empty; a named file must exist.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config file %s not found", path)
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.GridSize < 1 || c.GridSize > 1024 {
		return fmt.Errorf("grid_size %d out of range", c.GridSize)
	}
	if c.PairWindowMs < 1 {
		return fmt.Errorf("pair_window_ms must be positive")
	}
	if !c.Simulate && c.Endpoint == "" {
		return errors.New("endpoint required unless simulate is set")
	}
	if c.Export.Enabled && c.Export.RootDir == "" {
		return errors.New("export.root_dir required when export is enabled")
	}
	return nil
}
