// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// Environment variable names recognized alongside the config file.
// Secrets belong in the environment, not in checked-in config files.
const (
	EnvToken       = "ARCHIVER_TOKEN"
	EnvDatabaseURL = "ARCHIVER_DATABASE_URL"
	EnvBaseURL     = "ARCHIVER_BASE_URL"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Paths
	Workdir string `json:"workdir,omitempty"` // Working directory for cursor and fetched stories
	Archive string `json:"archive,omitempty"` // Path to the current archive zip

	// Remote
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"` // Remote site base URL
	Token   string `json:"token,omitempty"`                             // API token (prefer ARCHIVER_TOKEN)

	// Limits
	Retries int `json:"retries,omitempty" validate:"min=0"` // Consecutive failures before giving up
	Skips   int `json:"skips,omitempty" validate:"min=0"`   // Consecutive absent stories before stopping

	// Delays, in seconds
	SuccessDelay int `json:"success_delay,omitempty" validate:"min=0"`
	SkippedDelay int `json:"skipped_delay,omitempty" validate:"min=0"`
	FailureDelay int `json:"failure_delay,omitempty" validate:"min=0"`

	// Behavior
	Workers     int    `json:"workers,omitempty" validate:"min=0"` // Index load parallelism, 0 for GOMAXPROCS
	Verbose     bool   `json:"verbose,omitempty"`                  // Print detailed debug information
	DatabaseURL string `json:"database_url,omitempty"`             // PostgreSQL connection URL
	Blacklist   string `json:"blacklist,omitempty"`                // Path to the opt-out list
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv fills secret and endpoint fields from the environment when the
// config file leaves them empty. Environment values never override an
// explicit config value.
func (c *Config) FromEnv() {
	if c.Token == "" {
		c.Token = os.Getenv(EnvToken)
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv(EnvDatabaseURL)
	}
	if c.BaseURL == "" {
		c.BaseURL = os.Getenv(EnvBaseURL)
	}
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.Archive != "" {
		if _, err := os.Stat(c.Archive); os.IsNotExist(err) {
			return fmt.Errorf("config error: archive file not found: %s", c.Archive)
		}
	}
	if c.Blacklist != "" {
		if _, err := os.Stat(c.Blacklist); os.IsNotExist(err) {
			return fmt.Errorf("config error: blacklist file not found: %s", c.Blacklist)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Workdir == "" {
		result.Workdir = defaults.Workdir
	}
	if result.Archive == "" {
		result.Archive = defaults.Archive
	}
	if result.BaseURL == "" {
		result.BaseURL = defaults.BaseURL
	}
	if result.Token == "" {
		result.Token = defaults.Token
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.Blacklist == "" {
		result.Blacklist = defaults.Blacklist
	}

	if result.Retries == 0 {
		result.Retries = defaults.Retries
	}
	if result.Skips == 0 {
		result.Skips = defaults.Skips
	}
	if result.SuccessDelay == 0 {
		result.SuccessDelay = defaults.SuccessDelay
	}
	if result.SkippedDelay == 0 {
		result.SkippedDelay = defaults.SkippedDelay
	}
	if result.FailureDelay == 0 {
		result.FailureDelay = defaults.FailureDelay
	}
	if result.Workers == 0 {
		result.Workers = defaults.Workers
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
