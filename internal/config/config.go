// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Loading functions accept context.Context as the first parameter.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"time"

	"github.com/okian/trialstats/internal/domain/classify"
	"github.com/okian/trialstats/internal/domain/coerce"
)

// DefaultPolicyKey is the missing_policy entry applied to families without their own.
const DefaultPolicyKey = "default"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the primary store: csv, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// StorePath is the file used by the csv and sqlite drivers.
	StorePath string `koanf:"store_path"`

	// PostgresDSN is the connection string for the postgres driver.
	PostgresDSN string `koanf:"postgres_dsn"`

	// StoreTimeoutMS bounds every store and mirror call.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`

	// EntityKey groups trials: user_id or device_type.
	EntityKey string `koanf:"entity_key"`

	// MissingPolicy maps family names (or "default") to drop or fill_zero.
	MissingPolicy map[string]string `koanf:"missing_policy"`

	// MaxUploadBytes caps the POST /upload body.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// DedupeSize sets how many idempotency keys are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// Optional S3-compatible mirror; disabled when the bucket is empty.
	MirrorS3Bucket          string `koanf:"mirror_s3_bucket"`
	MirrorS3Region          string `koanf:"mirror_s3_region"`
	MirrorS3Endpoint        string `koanf:"mirror_s3_endpoint"`
	MirrorS3Prefix          string `koanf:"mirror_s3_prefix"`
	MirrorS3PathStyle       bool   `koanf:"mirror_s3_path_style"`
	MirrorS3AccessKeyID     string `koanf:"mirror_s3_access_key_id"`
	MirrorS3SecretAccessKey string `koanf:"mirror_s3_secret_access_key"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		StoreDriver:    "csv",
		StorePath:      "data/telemetry.csv",
		StoreTimeoutMS: 5_000,
		EntityKey:      "user_id",
		MissingPolicy: map[string]string{
			DefaultPolicyKey: string(coerce.Drop),
		},
		MaxUploadBytes: 1 << 20,
		DedupeSize:     50_000,
		MirrorS3Prefix: "telemetry",
	}
}

// StoreTimeout returns StoreTimeoutMS as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// MirrorEnabled reports whether an S3 mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.MirrorS3Bucket != ""
}

// Policies resolves MissingPolicy into the default and per-family policies.
func (c *Config) Policies() (coerce.Policy, map[classify.Family]coerce.Policy, error) {
	def, err := coerce.ParsePolicy(c.MissingPolicy[DefaultPolicyKey])
	if err != nil {
		return "", nil, wrapInvalid("missing_policy.default", err)
	}
	per := make(map[classify.Family]coerce.Policy)
	for name, raw := range c.MissingPolicy {
		if name == DefaultPolicyKey {
			continue
		}
		f := classify.Family(name)
		if !f.Valid() {
			return "", nil, wrapInvalid("missing_policy", ErrUnknownFamily, name)
		}
		p, err := coerce.ParsePolicy(raw)
		if err != nil {
			return "", nil, wrapInvalid("missing_policy."+name, err)
		}
		per[f] = p
	}
	return def, per, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return wrapInvalid("addr", ErrEmptyValue)
	}
	switch c.StoreDriver {
	case "csv", "sqlite":
		if c.StorePath == "" {
			return wrapInvalid("store_path", ErrEmptyValue)
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return wrapInvalid("postgres_dsn", ErrEmptyValue)
		}
	default:
		return wrapInvalid("store_driver", ErrUnknownDriver, c.StoreDriver)
	}
	if c.StoreTimeoutMS <= 0 {
		return wrapInvalid("store_timeout_ms", ErrNotPositive)
	}
	if c.MaxUploadBytes <= 0 {
		return wrapInvalid("max_upload_bytes", ErrNotPositive)
	}
	switch c.EntityKey {
	case "user_id", "device_type":
	default:
		return wrapInvalid("entity_key", ErrUnknownEntity, c.EntityKey)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return wrapInvalid("log_format", ErrUnknownFormat, c.LogFormat)
	}
	_, _, err := c.Policies()
	return err
}
