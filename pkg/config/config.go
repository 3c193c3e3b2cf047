// Package config loads the hybrid index's construction-time configuration
// from YAML, with in-code defaults applied for anything the file omits.
// A Config is built once and is immutable for the hybrid's lifetime —
// callers must not mutate fields of a Config handed to a running hybrid.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the recognized option set of spec.md §6.
type Config struct {
	// MigrationThreshold is the size-ratio trigger in (0,1]. A value in
	// (1,100] on the wire is treated as a percentage and divided by 100
	// (Open Question 2 of spec.md).
	MigrationThreshold float64 `yaml:"migration_threshold"`

	// AdaptiveThreshold enables the §4.5 feedback loop that nudges
	// MigrationThreshold based on the observed insert/lookup mix.
	AdaptiveThreshold bool `yaml:"adaptive_threshold"`

	// BatchSize is the queue-length migration trigger.
	BatchSize int `yaml:"batch_size"`

	// MinBatch is the minimum queue length the time trigger requires
	// before it fires (spec.md §4.5 min_batch).
	MinBatch int `yaml:"min_batch"`

	// HotConsecutiveThreshold and HotAbsoluteThreshold are the §4.2
	// classifier parameters.
	HotConsecutiveThreshold int `yaml:"hot_consecutive_threshold"`
	HotAbsoluteThreshold    int `yaml:"hot_absolute_threshold"`

	// ConsecutiveWindow bounds how close together two accesses must be
	// to count as "consecutive" (§4.2).
	ConsecutiveWindow time.Duration `yaml:"consecutive_window"`

	// PromotionCooldown is the minimum gap between re-promotions of a key.
	PromotionCooldown time.Duration `yaml:"promotion_cooldown"`

	// AgingHorizon is the KeyStat eviction age.
	AgingHorizon time.Duration `yaml:"aging_horizon"`

	// AsyncFlush selects the background-worker migration path over the
	// synchronous, calling-thread path.
	AsyncFlush bool `yaml:"async_flush"`

	// CheckPeriod is the insert-count stride for policy checks.
	CheckPeriod int `yaml:"check_period"`

	// MaxStaleness is the time trigger's staleness bound (§4.5).
	MaxStaleness time.Duration `yaml:"max_staleness"`

	// TrackerCapacity bounds |KeyStat| (invariant 5, §3 of spec.md).
	TrackerCapacity int `yaml:"tracker_capacity"`
}

// Default returns the configuration spec.md fixes as defaults.
func Default() *Config {
	return &Config{
		MigrationThreshold:      0.10,
		AdaptiveThreshold:       false,
		BatchSize:               1000,
		MinBatch:                50,
		HotConsecutiveThreshold: 2,
		HotAbsoluteThreshold:    5,
		ConsecutiveWindow:       50 * time.Millisecond,
		PromotionCooldown:       1 * time.Second,
		AgingHorizon:            250 * time.Millisecond,
		AsyncFlush:              false,
		CheckPeriod:             100,
		MaxStaleness:            500 * time.Millisecond,
		TrackerCapacity:         100000,
	}
}

// Load reads a Config from configPath, falling back to the well-known
// search path ("configs/hybrid.yaml", "hybrid.yaml") when configPath is
// empty, and to Default() when no file is found. Fields present in the
// file override the defaults; anything out of range is repaired by
// ApplyDefaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		for _, p := range []string{"configs/hybrid.yaml", "hybrid.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, err
				}
				ApplyDefaults(cfg)
				return cfg, nil
			}
		}
		ApplyDefaults(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// ApplyDefaults repairs out-of-range fields and resolves the
// integer-vs-ratio ambiguity of MigrationThreshold (Open Question 2).
func ApplyDefaults(cfg *Config) {
	if cfg.MigrationThreshold > 1 && cfg.MigrationThreshold <= 100 {
		cfg.MigrationThreshold = cfg.MigrationThreshold / 100
	}
	if cfg.MigrationThreshold <= 0 || cfg.MigrationThreshold > 1 {
		cfg.MigrationThreshold = 0.10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.MinBatch <= 0 {
		cfg.MinBatch = 50
	}
	if cfg.HotConsecutiveThreshold <= 0 {
		cfg.HotConsecutiveThreshold = 2
	}
	if cfg.HotAbsoluteThreshold <= 0 {
		cfg.HotAbsoluteThreshold = 5
	}
	if cfg.ConsecutiveWindow <= 0 {
		cfg.ConsecutiveWindow = 50 * time.Millisecond
	}
	if cfg.PromotionCooldown <= 0 {
		cfg.PromotionCooldown = 1 * time.Second
	}
	if cfg.AgingHorizon <= 0 {
		cfg.AgingHorizon = 250 * time.Millisecond
	}
	if cfg.CheckPeriod <= 0 {
		cfg.CheckPeriod = 100
	}
	if cfg.MaxStaleness <= 0 {
		cfg.MaxStaleness = 500 * time.Millisecond
	}
	if cfg.TrackerCapacity <= 0 {
		cfg.TrackerCapacity = 100000
	}
}
