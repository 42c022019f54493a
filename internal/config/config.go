// Package config loads grepzillad's configuration: built-in defaults,
// optionally overridden by a TOML file, then by GZ_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full server configuration, per spec.md §6's
// "addr, wal_dir, segment_out_dir, parallelism, hot_cap,
// manifest_path?, shard" shape, plus the ambient fields (log level,
// hard cap, deadline/candidate defaults) a real deployment needs.
type Config struct {
	Addr          string `toml:"addr"`
	WalDir        string `toml:"wal_dir"`
	SegmentOutDir string `toml:"segment_out_dir"`
	Parallelism   int    `toml:"parallelism"`
	HotCap        int    `toml:"hot_cap"`
	HotHardCap    int    `toml:"hot_hard_cap"`
	ManifestPath  string `toml:"manifest_path"`
	Shard         uint64 `toml:"shard"`

	LogLevel             string `toml:"log_level"`
	DefaultDeadlineMs    uint   `toml:"default_deadline_ms"`
	DefaultMaxCandidates uint   `toml:"default_max_candidates"`
}

// Default returns the built-in configuration baseline.
func Default() Config {
	return Config{
		Addr:                 ":8080",
		WalDir:               "data/wal",
		SegmentOutDir:        "data/segments",
		Parallelism:          8,
		HotCap:               10_000,
		HotHardCap:           12_000,
		ManifestPath:         "data/manifest.json",
		Shard:                0,
		LogLevel:             "info",
		DefaultDeadlineMs:    0,
		DefaultMaxCandidates: 200_000,
	}
}

// Load builds a Config starting from Default, layering in path (a TOML
// file, if non-empty and present) and then GZ_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GZ_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("GZ_WAL_DIR"); v != "" {
		cfg.WalDir = v
	}
	if v := os.Getenv("GZ_SEGMENT_OUT_DIR"); v != "" {
		cfg.SegmentOutDir = v
	}
	if v := os.Getenv("GZ_MANIFEST"); v != "" {
		cfg.ManifestPath = v
	}
	if v := os.Getenv("GZ_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if n, ok := envUint("GZ_PARALLELISM"); ok {
		cfg.Parallelism = int(n)
	}
	if n, ok := envUint("GZ_HOT_CAP"); ok {
		cfg.HotCap = int(n)
	}
	if n, ok := envUint("GZ_HOT_HARD_CAP"); ok {
		cfg.HotHardCap = int(n)
	}
	if n, ok := envUint("GZ_SHARD"); ok {
		cfg.Shard = n
	}
	if n, ok := envUint("GZ_DEFAULT_DEADLINE_MS"); ok {
		cfg.DefaultDeadlineMs = uint(n)
	}
	if n, ok := envUint("GZ_DEFAULT_MAX_CANDIDATES"); ok {
		cfg.DefaultMaxCandidates = uint(n)
	}
}

func envUint(name string) (uint64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
