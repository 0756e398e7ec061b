// Package config loads screenctl settings.
//
// Precedence, lowest first: built-in defaults, the YAML file, SCHOOLSCREEN_*
// environment variables, then command-line flags (applied by the CLI).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCHOOLSCREEN"

// Store driver names.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverS3       = "s3"
	DriverPostgres = "postgres"
)

// Drivers lists the accepted store drivers.
var Drivers = []string{DriverMemory, DriverFile, DriverSQLite, DriverRedis, DriverS3, DriverPostgres}

// Config is the full screenctl configuration.
type Config struct {
	Store    Store    `yaml:"store"`
	Autosave Autosave `yaml:"autosave"`
	Analysis Analysis `yaml:"analysis"`
	EMR      EMR      `yaml:"emr"`
	Log      Log      `yaml:"log"`
}

// Store selects and configures the keyed record store.
type Store struct {
	Driver string `yaml:"driver"`
	// Path is the directory (file driver) or database file (sqlite driver).
	Path string `yaml:"path"`
	// QuotaBytes caps stored bytes for the memory and sqlite drivers.
	QuotaBytes int64    `yaml:"quota_bytes"`
	Redis      Redis    `yaml:"redis"`
	S3         S3       `yaml:"s3"`
	Postgres   Postgres `yaml:"postgres"`
}

// Redis connection settings.
type Redis struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

// S3 bucket settings.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Postgres connection settings.
type Postgres struct {
	DSN string `yaml:"dsn"`
}

// Autosave tunes the debounce window.
type Autosave struct {
	QuietWindow time.Duration `yaml:"quiet_window"`
}

// Analysis configures the AI proxy client.
type Analysis struct {
	URL          string        `yaml:"url"`
	TextTimeout  time.Duration `yaml:"text_timeout"`
	ImageTimeout time.Duration `yaml:"image_timeout"`
	OCRTimeout   time.Duration `yaml:"ocr_timeout"`
	AudioTimeout time.Duration `yaml:"audio_timeout"`
	RetryCount   int           `yaml:"retry_count"`
}

// EMR configures the upload target.
type EMR struct {
	Endpoint string `yaml:"endpoint"`
	// Format is one of json, fhir, hl7, custom.
	Format string `yaml:"format"`
	// AuthType is one of none, bearer, apikey.
	AuthType string            `yaml:"auth_type"`
	APIKey   string            `yaml:"api_key"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`
	// BatchDelay is the pause between uploads in a batch.
	BatchDelay time.Duration `yaml:"batch_delay"`
}

// Log configures the slog handler.
type Log struct {
	Format string `yaml:"format"` // text | json
	Level  string `yaml:"level"`  // debug | info | warn | error
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: Store{
			Driver:     DriverSQLite,
			Path:       "schoolscreen.db",
			QuotaBytes: 5 << 20,
			Redis:      Redis{Addr: "localhost:6379", Namespace: "schoolscreen:"},
			S3:         S3{Region: "us-east-1", Prefix: "schoolscreen/"},
		},
		Autosave: Autosave{QuietWindow: 2 * time.Second},
		Analysis: Analysis{
			URL:          "http://localhost:8888/api/gemini-proxy",
			TextTimeout:  30 * time.Second,
			ImageTimeout: 45 * time.Second,
			OCRTimeout:   20 * time.Second,
			AudioTimeout: 30 * time.Second,
		},
		EMR: EMR{
			Format:     "json",
			AuthType:   "none",
			Timeout:    30 * time.Second,
			BatchDelay: time.Second,
		},
		Log: Log{Format: "text", Level: "info"},
	}
}

// Load returns defaults overlaid with the YAML file at path (skipped when
// path is empty) and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

// ApplyEnv overlays SCHOOLSCREEN_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + "_" + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + "_" + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	num64 := func(name string, dst *int64) {
		if v, ok := lookup(EnvPrefix + "_" + name); ok && v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + "_" + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + "_" + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_PATH", &c.Store.Path)
	num64("STORE_QUOTA_BYTES", &c.Store.QuotaBytes)
	str("REDIS_ADDR", &c.Store.Redis.Addr)
	str("REDIS_PASSWORD", &c.Store.Redis.Password)
	num("REDIS_DB", &c.Store.Redis.DB)
	str("REDIS_NAMESPACE", &c.Store.Redis.Namespace)
	str("S3_BUCKET", &c.Store.S3.Bucket)
	str("S3_REGION", &c.Store.S3.Region)
	str("S3_ENDPOINT", &c.Store.S3.Endpoint)
	str("S3_PREFIX", &c.Store.S3.Prefix)
	flag("S3_PATH_STYLE", &c.Store.S3.PathStyle)
	str("POSTGRES_DSN", &c.Store.Postgres.DSN)
	dur("AUTOSAVE_QUIET_WINDOW", &c.Autosave.QuietWindow)
	str("ANALYSIS_URL", &c.Analysis.URL)
	num("ANALYSIS_RETRY_COUNT", &c.Analysis.RetryCount)
	str("EMR_ENDPOINT", &c.EMR.Endpoint)
	str("EMR_FORMAT", &c.EMR.Format)
	str("EMR_AUTH_TYPE", &c.EMR.AuthType)
	str("EMR_API_KEY", &c.EMR.APIKey)
	dur("EMR_BATCH_DELAY", &c.EMR.BatchDelay)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

// Validate checks enumerated fields and required driver settings.
func (c Config) Validate() error {
	if !slices.Contains(Drivers, c.Store.Driver) {
		return fmt.Errorf("invalid store driver %q: must be one of %v", c.Store.Driver, Drivers)
	}
	switch c.Store.Driver {
	case DriverFile, DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path required for %s driver", c.Store.Driver)
		}
	case DriverS3:
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket required for s3 driver")
		}
	}
	if c.Autosave.QuietWindow <= 0 {
		return fmt.Errorf("autosave.quiet_window must be positive, got %s", c.Autosave.QuietWindow)
	}
	if !slices.Contains([]string{"json", "fhir", "hl7", "custom"}, c.EMR.Format) {
		return fmt.Errorf("invalid emr format %q", c.EMR.Format)
	}
	if !slices.Contains([]string{"none", "bearer", "apikey"}, c.EMR.AuthType) {
		return fmt.Errorf("invalid emr auth type %q", c.EMR.AuthType)
	}
	if !slices.Contains([]string{"text", "json"}, c.Log.Format) {
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	return nil
}
