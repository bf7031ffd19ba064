package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Business describes the fixed partition set records are scoped by.
type Business struct {
	Units []string `toml:"units"`
}

// Queue contains work-queue defaults applied when callers omit values.
type Queue struct {
	DefaultPriority    int `toml:"default_priority"`
	DefaultMaxAttempts int `toml:"default_max_attempts"`
	DefaultLease       int `toml:"default_lease_seconds"`
	// PayloadSchemaDir names a directory of <task_type>.json schemas.
	// When set, enqueue validates payloads against the matching schema.
	PayloadSchemaDir string `toml:"payload_schema_dir"`
}

// Ingestion contains ingestion-job tracker settings.
type Ingestion struct {
	// StaleStartedAfterHours lets a new begin() reclaim a job stuck in
	// "started" longer than this window. Zero disables reclaim.
	StaleStartedAfterHours int `toml:"stale_started_after_hours"`
}

// Worker contains worker-pool polling settings for loomd.
type Worker struct {
	Queues       []string `toml:"queues"`
	PollInterval int      `toml:"poll_interval_seconds"`
	BatchSize    int      `toml:"batch_size"`
	Concurrency  int      `toml:"concurrency"`
	LeaseSeconds int      `toml:"lease_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for loom.
//
// Sections by subsystem:
//   - Paths: data and log directories
//   - Business: allowed business-unit partition labels
//   - Queue: enqueue defaults and optional payload schemas
//   - Ingestion: stuck-job reclaim window
//   - Worker: loomd polling cadence
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Business  Business  `toml:"business"`
	Queue     Queue     `toml:"queue"`
	Ingestion Ingestion `toml:"ingestion"`
	Worker    Worker    `toml:"worker"`
	Logging   Logging   `toml:"logging"`
}

// envOverrides maps LOOM_* environment variables onto config fields after the
// TOML file is decoded.
type envOverrides struct {
	DataDir   string `env:"LOOM_DATA_DIR"`
	LogDir    string `env:"LOOM_LOG_DIR"`
	LogLevel  string `env:"LOOM_LOG_LEVEL"`
	LogFormat string `env:"LOOM_LOG_FORMAT"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/loom/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return is
// the resolved path, the third whether a file existed there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return nil, "", false, fmt.Errorf("parse environment: %w", err)
	}
	cfg.applyOverrides(overrides)

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyOverrides(o envOverrides) {
	if strings.TrimSpace(o.DataDir) != "" {
		c.Paths.DataDir = o.DataDir
	}
	if strings.TrimSpace(o.LogDir) != "" {
		c.Paths.LogDir = o.LogDir
	}
	if strings.TrimSpace(o.LogLevel) != "" {
		c.Logging.Level = o.LogLevel
	}
	if strings.TrimSpace(o.LogFormat) != "" {
		c.Logging.Format = o.LogFormat
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("loom.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the path of the shared SQLite database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "loom.db")
}

// LockPath returns the daemon single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "loomd.lock")
}

// AllowedUnit reports whether a business-unit label belongs to the
// configured partition set.
func (c *Config) AllowedUnit(unit string) bool {
	for _, candidate := range c.Business.Units {
		if candidate == unit {
			return true
		}
	}
	return false
}

// StaleStartedAfter returns the ingestion reclaim window, zero when disabled.
func (c *Config) StaleStartedAfter() time.Duration {
	if c.Ingestion.StaleStartedAfterHours <= 0 {
		return 0
	}
	return time.Duration(c.Ingestion.StaleStartedAfterHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
