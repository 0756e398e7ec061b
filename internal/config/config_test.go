package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schoolscreen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2*time.Second, cfg.Autosave.QuietWindow)
	assert.Equal(t, 20*time.Second, cfg.Analysis.OCRTimeout)
	assert.Equal(t, 45*time.Second, cfg.Analysis.ImageTimeout)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: file
  path: /var/lib/schoolscreen
autosave:
  quiet_window: 500ms
emr:
  endpoint: https://emr.example.test/upload
  format: fhir
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverFile, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/schoolscreen", cfg.Store.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Autosave.QuietWindow)
	assert.Equal(t, "fhir", cfg.EMR.Format)
	// untouched sections keep defaults
	assert.Equal(t, 30*time.Second, cfg.Analysis.TextTimeout)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, "store:\n  drvier: memory\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drvier")
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Store.Driver, cfg.Store.Driver)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SCHOOLSCREEN_STORE_DRIVER":          "redis",
		"SCHOOLSCREEN_REDIS_ADDR":            "cache:6380",
		"SCHOOLSCREEN_REDIS_DB":              "3",
		"SCHOOLSCREEN_S3_PATH_STYLE":         "true",
		"SCHOOLSCREEN_AUTOSAVE_QUIET_WINDOW": "5s",
		"SCHOOLSCREEN_LOG_FORMAT":            "json",
		"SCHOOLSCREEN_STORE_PATH":            "",
	}))
	require.NoError(t, err)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "cache:6380", cfg.Store.Redis.Addr)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
	assert.True(t, cfg.Store.S3.PathStyle)
	assert.Equal(t, 5*time.Second, cfg.Autosave.QuietWindow)
	assert.Equal(t, "json", cfg.Log.Format)
	// empty values do not clear defaults
	assert.Equal(t, "schoolscreen.db", cfg.Store.Path)
}

func TestApplyEnv_CollectsParseErrors(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SCHOOLSCREEN_REDIS_DB":              "three",
		"SCHOOLSCREEN_AUTOSAVE_QUIET_WINDOW": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHOOLSCREEN_REDIS_DB")
	assert.Contains(t, err.Error(), "SCHOOLSCREEN_AUTOSAVE_QUIET_WINDOW")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad driver", func(c *Config) { c.Store.Driver = "leveldb" }, "invalid store driver"},
		{"file without path", func(c *Config) { c.Store.Driver = DriverFile; c.Store.Path = "" }, "store.path required"},
		{"s3 without bucket", func(c *Config) { c.Store.Driver = DriverS3 }, "store.s3.bucket required"},
		{"zero quiet window", func(c *Config) { c.Autosave.QuietWindow = 0 }, "quiet_window"},
		{"bad emr format", func(c *Config) { c.EMR.Format = "xml" }, "emr format"},
		{"bad auth type", func(c *Config) { c.EMR.AuthType = "basic" }, "auth type"},
		{"bad log format", func(c *Config) { c.Log.Format = "logfmt" }, "log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
