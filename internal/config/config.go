// Package config loads station configuration from YAML, applies defaults,
// and can watch the file for changes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the effective station configuration.
type Config struct {
	// StationID names this test station in records.
	StationID string `yaml:"station_id"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// OutputDir is where record writers place their files.
	OutputDir string `yaml:"output_dir"`
	// AllowUnsetMeasurements treats UNSET measurements as acceptable when
	// deriving a phase outcome.
	AllowUnsetMeasurements bool `yaml:"allow_unset_measurements"`
	// StopOnFirstFailure stops the test at the first failed top-level phase.
	StopOnFirstFailure bool `yaml:"stop_on_first_failure"`
	// CancelTimeoutS bounds the wait for a stopped phase goroutine to exit.
	CancelTimeoutS float64 `yaml:"cancel_timeout_s"`
	// TeardownTimeoutS bounds each teardown phase without its own timeout.
	TeardownTimeoutS float64 `yaml:"teardown_timeout_s"`
	// DefaultPhaseTimeoutS bounds phases that declare no timeout.
	DefaultPhaseTimeoutS float64 `yaml:"default_phase_timeout_s"`
}

// Default returns the built-in configuration.
func Default() Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "teststand"
	}
	return Config{
		StationID:            host,
		LogLevel:             "info",
		OutputDir:            ".",
		CancelTimeoutS:       2,
		TeardownTimeoutS:     30,
		DefaultPhaseTimeoutS: 180,
	}
}

// Load reads path and merges it over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the executors cannot work with.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.CancelTimeoutS < 0 {
		return fmt.Errorf("cancel_timeout_s must be >= 0, got %g", c.CancelTimeoutS)
	}
	if c.TeardownTimeoutS < 0 {
		return fmt.Errorf("teardown_timeout_s must be >= 0, got %g", c.TeardownTimeoutS)
	}
	if c.DefaultPhaseTimeoutS <= 0 {
		return fmt.Errorf("default_phase_timeout_s must be > 0, got %g", c.DefaultPhaseTimeoutS)
	}
	return nil
}

// CancelTimeout returns the stop-wait bound as a duration.
func (c Config) CancelTimeout() time.Duration {
	return time.Duration(c.CancelTimeoutS * float64(time.Second))
}

// TeardownTimeout returns the teardown phase bound as a duration.
func (c Config) TeardownTimeout() time.Duration {
	return time.Duration(c.TeardownTimeoutS * float64(time.Second))
}

// DefaultPhaseTimeout returns the fallback phase timeout as a duration.
func (c Config) DefaultPhaseTimeout() time.Duration {
	return time.Duration(c.DefaultPhaseTimeoutS * float64(time.Second))
}

// KeyHelp documents every configuration key for the CLI's --help-values.
func KeyHelp() []KeyDoc {
	return []KeyDoc{
		{"station_id", "string", "Station name recorded on every test record (default: hostname)."},
		{"log_level", "string", "Log verbosity: debug, info, warn, error (default: info)."},
		{"output_dir", "string", "Directory for record output files (default: current directory)."},
		{"allow_unset_measurements", "bool", "Treat UNSET measurements as passing when deriving phase outcomes (default: false)."},
		{"stop_on_first_failure", "bool", "Stop the test at the first failed top-level phase (default: false)."},
		{"cancel_timeout_s", "float", "Seconds to wait for a stopped phase goroutine to exit (default: 2)."},
		{"teardown_timeout_s", "float", "Timeout in seconds for teardown phases without their own (default: 30)."},
		{"default_phase_timeout_s", "float", "Timeout in seconds for phases without their own (default: 180)."},
	}
}

// KeyDoc describes one configuration key.
type KeyDoc struct {
	Key         string
	Type        string
	Description string
}
