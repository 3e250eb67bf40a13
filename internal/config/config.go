// Package config provides unified configuration loading for latwalk.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/latwalk/internal/checkpoint"
	"github.com/nvandessel/latwalk/internal/lattice"
	"gopkg.in/yaml.v3"
)

// LatwalkConfig contains all latwalk configuration settings.
type LatwalkConfig struct {
	// Simulation holds the default cell parameters for new runs.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Checkpoint controls where and how often run state is persisted.
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics configures the Prometheus textfile export.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// SimulationConfig holds run parameters.
type SimulationConfig struct {
	// Lattice is "hexagonal" or "square".
	Lattice string `json:"lattice" yaml:"lattice"`

	// N is the maximum walk length.
	N int `json:"n" yaml:"n"`

	// Mu is the growth constant estimate recorded with each run.
	Mu float64 `json:"mu" yaml:"mu"`

	// ContactLevel is the face-contact level used as third histogram index.
	ContactLevel int `json:"contact_level" yaml:"contact_level"`

	// Workers bounds the parallel fan-out (0 = serial).
	Workers int `json:"workers" yaml:"workers"`
}

// CheckpointConfig configures checkpoint files and the run database.
type CheckpointConfig struct {
	// Dir receives latwalk-checkpoint-*.ckpt files. Empty disables file checkpoints.
	Dir string `json:"dir" yaml:"dir"`

	// Keep is the number of checkpoint files retained after each write.
	Keep int `json:"keep" yaml:"keep"`

	// MaxAge additionally keeps files younger than this, e.g. "7d". Empty disables.
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`

	// Database is the SQLite run store. Empty disables it.
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
}

// LoggingConfig configures latwalk's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the event log in EventDir.
	Level string `json:"level" yaml:"level"`

	// EventDir receives events.jsonl at debug level and above.
	EventDir string `json:"event_dir,omitempty" yaml:"event_dir,omitempty"`
}

// MetricsConfig configures run metrics.
type MetricsConfig struct {
	// Textfile is written in Prometheus text format at the end of a run.
	Textfile string `json:"textfile,omitempty" yaml:"textfile,omitempty"`
}

// Dir returns ~/.latwalk, or ".latwalk" if the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".latwalk"
	}
	return filepath.Join(home, ".latwalk")
}

// Default returns a LatwalkConfig with sensible defaults.
func Default() *LatwalkConfig {
	dir := Dir()
	return &LatwalkConfig{
		Simulation: SimulationConfig{
			Lattice:      "hexagonal",
			N:            12,
			Mu:           1.847759065, // sqrt(2+sqrt(2))
			ContactLevel: 2,
			Workers:      0,
		},
		Checkpoint: CheckpointConfig{
			Dir:  filepath.Join(dir, "checkpoints"),
			Keep: 5,
		},
		Logging: LoggingConfig{
			Level:    "info",
			EventDir: dir,
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.latwalk/config.yaml -> environment variables
func Load() (*LatwalkConfig, error) {
	config := Default()

	configPath := filepath.Join(Dir(), "config.yaml")
	if _, statErr := os.Stat(configPath); statErr == nil {
		fileConfig, loadErr := LoadFromFile(configPath)
		if loadErr != nil {
			return nil, fmt.Errorf("loading config file: %w", loadErr)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Path fields may
// reference environment variables with ${VAR}.
func LoadFromFile(path string) (*LatwalkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Checkpoint.Dir = expandEnvVars(config.Checkpoint.Dir)
	config.Checkpoint.Database = expandEnvVars(config.Checkpoint.Database)
	config.Logging.EventDir = expandEnvVars(config.Logging.EventDir)
	config.Metrics.Textfile = expandEnvVars(config.Metrics.Textfile)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *LatwalkConfig) Validate() error {
	l, err := lattice.ByName(c.Simulation.Lattice)
	if err != nil {
		return err
	}
	if c.Simulation.N < 1 {
		return fmt.Errorf("n must be at least 1, got %d", c.Simulation.N)
	}
	if c.Simulation.Mu <= 0 {
		return fmt.Errorf("mu must be positive, got %f", c.Simulation.Mu)
	}
	if c.Simulation.ContactLevel < 1 || c.Simulation.ContactLevel > l.Coordination() {
		return fmt.Errorf("contact_level must be between 1 and %d for %s, got %d",
			l.Coordination(), l.Name(), c.Simulation.ContactLevel)
	}
	if c.Simulation.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Simulation.Workers)
	}

	if c.Checkpoint.Keep < 0 {
		return fmt.Errorf("keep must be non-negative, got %d", c.Checkpoint.Keep)
	}
	if c.Checkpoint.MaxAge != "" {
		if _, err := checkpoint.ParseDuration(c.Checkpoint.MaxAge); err != nil {
			return fmt.Errorf("invalid max_age: %w", err)
		}
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *LatwalkConfig) {
	if v := os.Getenv("LATWALK_LATTICE"); v != "" {
		config.Simulation.Lattice = v
	}
	if v := os.Getenv("LATWALK_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.N = n
		}
	}
	if v := os.Getenv("LATWALK_MU"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.Mu = f
		}
	}
	if v := os.Getenv("LATWALK_CONTACT_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.ContactLevel = n
		}
	}
	if v := os.Getenv("LATWALK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Workers = n
		}
	}

	if v := os.Getenv("LATWALK_CHECKPOINT_DIR"); v != "" {
		config.Checkpoint.Dir = v
	}
	if v := os.Getenv("LATWALK_CHECKPOINT_KEEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Checkpoint.Keep = n
		}
	}
	if v := os.Getenv("LATWALK_DATABASE"); v != "" {
		config.Checkpoint.Database = v
	}

	if v := os.Getenv("LATWALK_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("LATWALK_METRICS_TEXTFILE"); v != "" {
		config.Metrics.Textfile = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
