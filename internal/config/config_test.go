package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `{
		"workdir": "worktree/update",
		"base_url": "https://example.com",
		"retries": 5,
		"success_delay": 1,
		"verbose": true
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "worktree/update", cfg.Workdir)
	assert.Equal(t, "https://example.com", cfg.BaseURL)
	assert.Equal(t, 5, cfg.Retries)
	assert.Equal(t, 1, cfg.SuccessDelay)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "config path is empty")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{"workdir": `)
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config JSON")
}

func TestValidate_BadURL(t *testing.T) {
	cfg := &Config{BaseURL: "not a url"}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "config error")
}

func TestValidate_NegativeRetries(t *testing.T) {
	cfg := &Config{Retries: -1}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "config error")
}

func TestValidate_MissingArchiveFile(t *testing.T) {
	cfg := &Config{Archive: filepath.Join(t.TempDir(), "missing.zip")}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "archive file not found")
}

func TestValidate_MissingBlacklistFile(t *testing.T) {
	cfg := &Config{Blacklist: filepath.Join(t.TempDir(), "missing.yml")}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "blacklist file not found")
}

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{}
	assert.NoError(t, cfg.Validate())
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := Config{
		Workdir: "explicit",
		Retries: 3,
	}
	defaults := Config{
		Workdir:      "default-workdir",
		BaseURL:      "https://example.com",
		Retries:      10,
		Skips:        500,
		SuccessDelay: 5,
	}

	merged := cfg.MergeWithDefaults(defaults)

	assert.Equal(t, "explicit", merged.Workdir)
	assert.Equal(t, 3, merged.Retries)
	assert.Equal(t, "https://example.com", merged.BaseURL)
	assert.Equal(t, 500, merged.Skips)
	assert.Equal(t, 5, merged.SuccessDelay)
}

func TestFromEnv_FillsEmptyFields(t *testing.T) {
	t.Setenv(EnvToken, "env-token")
	t.Setenv(EnvBaseURL, "https://env.example.com")
	t.Setenv(EnvDatabaseURL, "postgres://env/db")

	cfg := &Config{Token: "explicit-token"}
	cfg.FromEnv()

	// Explicit config values win over the environment.
	assert.Equal(t, "explicit-token", cfg.Token)
	assert.Equal(t, "https://env.example.com", cfg.BaseURL)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
}
