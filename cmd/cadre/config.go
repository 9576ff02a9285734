package main

import (
	"bytes"
	"os"
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/pool"
	"github.com/cadre-dev/cadre/pkg/team"
	"github.com/cadre-dev/cadre/pkg/types"
	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML runtime configuration for serve. Zero
// values mean "keep the component default".
type fileConfig struct {
	Pool struct {
		InitialSize          int     `yaml:"initialSize"`
		MaxSize              int     `yaml:"maxSize"`
		AutoScale            *bool   `yaml:"autoScale"`
		PerformanceThreshold float64 `yaml:"performanceThreshold"`
		HealthInterval       string  `yaml:"healthInterval"`
	} `yaml:"pool"`

	Teams struct {
		MinSize           int    `yaml:"minSize"`
		MaxSize           int    `yaml:"maxSize"`
		MaxTeams          int    `yaml:"maxTeams"`
		CheckInterval     string `yaml:"checkInterval"`
		AutoDissolveAfter string `yaml:"autoDissolveAfter"`
		FormationTimeout  string `yaml:"formationTimeout"`
	} `yaml:"teams"`

	Capacity struct {
		CPUCores      float64 `yaml:"cpuCores"`
		MemoryGB      int64   `yaml:"memoryGB"`
		StorageGB     int64   `yaml:"storageGB"`
		BandwidthMbps int64   `yaml:"bandwidthMbps"`
	} `yaml:"capacity"`
}

// loadConfig parses the YAML file at path. Unknown keys are rejected so a
// typo fails loudly instead of being silently ignored.
func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.InvalidArgument("failed to read config file: %v", err)
	}

	var cfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errdefs.InvalidArgument("failed to parse config file %s: %v", path, err)
	}
	return &cfg, nil
}

// applyPool folds the file overrides into the pool configuration
func (c *fileConfig) applyPool(cfg *pool.Config) error {
	if c.Pool.InitialSize > 0 {
		cfg.InitialSize = c.Pool.InitialSize
	}
	if c.Pool.MaxSize > 0 {
		cfg.MaxSize = c.Pool.MaxSize
	}
	if c.Pool.AutoScale != nil {
		cfg.AutoScale = *c.Pool.AutoScale
	}
	if c.Pool.PerformanceThreshold > 0 {
		cfg.PerformanceThreshold = c.Pool.PerformanceThreshold
	}
	interval, err := parseDuration(c.Pool.HealthInterval, cfg.HealthInterval)
	if err != nil {
		return err
	}
	cfg.HealthInterval = interval
	return nil
}

// applyTeams folds the file overrides into the orchestrator configuration
func (c *fileConfig) applyTeams(cfg *team.Config) error {
	if c.Teams.MinSize > 0 {
		cfg.MinTeamSize = c.Teams.MinSize
	}
	if c.Teams.MaxSize > 0 {
		cfg.MaxTeamSize = c.Teams.MaxSize
	}
	if c.Teams.MaxTeams > 0 {
		cfg.MaxTeams = c.Teams.MaxTeams
	}
	var err error
	if cfg.CheckInterval, err = parseDuration(c.Teams.CheckInterval, cfg.CheckInterval); err != nil {
		return err
	}
	if cfg.AutoDissolveAfter, err = parseDuration(c.Teams.AutoDissolveAfter, cfg.AutoDissolveAfter); err != nil {
		return err
	}
	if cfg.FormationTimeout, err = parseDuration(c.Teams.FormationTimeout, cfg.FormationTimeout); err != nil {
		return err
	}
	return nil
}

// capacity returns the control-plane capacity, file values over defaults
func (c *fileConfig) capacity(def types.Resources) types.Resources {
	if c.Capacity.CPUCores > 0 {
		def.CPUCores = c.Capacity.CPUCores
	}
	if c.Capacity.MemoryGB > 0 {
		def.MemoryBytes = c.Capacity.MemoryGB << 30
	}
	if c.Capacity.StorageGB > 0 {
		def.StorageBytes = c.Capacity.StorageGB << 30
	}
	if c.Capacity.BandwidthMbps > 0 {
		def.BandwidthMbps = c.Capacity.BandwidthMbps
	}
	return def
}

// parseDuration validates a duration string from the config file. An empty
// string keeps the fallback.
func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errdefs.InvalidArgument("bad duration %q: %v", value, err)
	}
	return d, nil
}
