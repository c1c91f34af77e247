// Package config loads the environment-level defaults of the provider.
// Values come from BLUEPRINT_* environment variables, optionally layered
// over a YAML file named by BLUEPRINT_CONFIG_FILE. Provider configuration
// overrides whatever is loaded here.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Failure modes.
const (
	FailureModeBestEffort = "BEST_EFFORT"
	FailureModeStrict     = "STRICT"
)

// FileEnv names the environment variable pointing at an optional YAML file.
const FileEnv = "BLUEPRINT_CONFIG_FILE"

// Settings holds the environment-level configuration surface.
type Settings struct {
	// APIBaseURL is the governance service root.
	APIBaseURL string `yaml:"api_base_url" env:"BLUEPRINT_API_BASE_URL" env-default:"https://api.blueprint.dev"`

	// MaxSnapshotBytes caps the transmitted payload size.
	MaxSnapshotBytes int64 `yaml:"max_snapshot_bytes" env:"BLUEPRINT_MAX_SNAPSHOT_BYTES" env-default:"1048576"`

	// TimeoutSeconds bounds each HTTP attempt.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"BLUEPRINT_TIMEOUT_SECONDS" env-default:"30"`

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries" env:"BLUEPRINT_MAX_RETRIES" env-default:"2"`

	FailureMode string `yaml:"failure_mode" env:"BLUEPRINT_FAILURE_MODE" env-default:"BEST_EFFORT"`

	CacheDir string `yaml:"cache_dir" env:"BLUEPRINT_CACHE_DIR" env-default:".blueprint/cache"`

	// LedgerRetain is how many event ledger entries each binding keeps.
	LedgerRetain int `yaml:"ledger_retain" env:"BLUEPRINT_LEDGER_RETAIN" env-default:"10"`
}

// Load reads Settings from the environment, layered over the file named
// by BLUEPRINT_CONFIG_FILE when it is set.
func Load() (*Settings, error) {
	cfg := &Settings{}

	if path := os.Getenv(FileEnv); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (s *Settings) Validate() error {
	u, err := url.Parse(s.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api base url %q", s.APIBaseURL)
	}
	if s.MaxSnapshotBytes <= 0 {
		return fmt.Errorf("max snapshot bytes must be positive, got %d", s.MaxSnapshotBytes)
	}
	if s.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout seconds must be positive, got %d", s.TimeoutSeconds)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", s.MaxRetries)
	}
	if s.LedgerRetain < 1 {
		return fmt.Errorf("ledger retain must be at least 1, got %d", s.LedgerRetain)
	}
	return ValidFailureMode(s.FailureMode)
}

// Timeout returns the per-attempt timeout.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ValidFailureMode reports whether mode is a known failure mode.
func ValidFailureMode(mode string) error {
	switch mode {
	case FailureModeBestEffort, FailureModeStrict:
		return nil
	}
	return fmt.Errorf("unknown failure mode %q (want %s or %s)", mode, FailureModeBestEffort, FailureModeStrict)
}
