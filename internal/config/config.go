// Package config loads and validates migration configuration from a YAML
// file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/hemanttanawade-debug/drive-migration/internal/logging"
)

type Config struct {
	SourceDomain string `yaml:"source_domain"`
	DestDomain   string `yaml:"dest_domain"`

	Remote    RemoteConfig    `yaml:"remote"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       logging.Config  `yaml:"log"`
}

// RemoteConfig selects the tenant transport driver.
type RemoteConfig struct {
	Driver       string            `yaml:"driver"`
	SourceTenant string            `yaml:"source_tenant"`
	DestTenant   string            `yaml:"dest_tenant"`
	Options      map[string]string `yaml:"options"`
}

// LedgerConfig selects and configures the durable state backend.
type LedgerConfig struct {
	Backend     string `yaml:"backend"` // "sqlite" | "postgres"
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ArtifactsConfig configures where snapshot and report documents land.
type ArtifactsConfig struct {
	Backend    string `yaml:"backend"` // "local" | "gcs" | "s3"
	LocalDir   string `yaml:"local_dir"`
	GCSBucket  string `yaml:"gcs_bucket"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
	Prefix     string `yaml:"prefix"`
}

// TransferConfig tunes per-object transfer behavior.
type TransferConfig struct {
	Workers         int               `yaml:"workers"`
	MaxObjectSizeMB int64             `yaml:"max_object_size_mb"`
	MaxAttempts     int               `yaml:"max_attempts"`
	RetryBackoffMs  int               `yaml:"retry_backoff_ms"`
	RetryMaxDelayMs int               `yaml:"retry_max_delay_ms"`
	ThrottleDelayMs int               `yaml:"throttle_delay_ms"`
	ExportFallback  bool              `yaml:"export_fallback"`
	DomainMapExtra  map[string]string `yaml:"domain_map_extra"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads the YAML config file, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.Remote.SourceTenant == "" {
		cfg.Remote.SourceTenant = cfg.SourceDomain
	}
	if cfg.Remote.DestTenant == "" {
		cfg.Remote.DestTenant = cfg.DestDomain
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Remote: RemoteConfig{
			Driver: "memory",
		},
		Ledger: LedgerConfig{
			Backend:    "sqlite",
			SQLitePath: "./migration_state.db",
		},
		Artifacts: ArtifactsConfig{
			Backend:  "local",
			LocalDir: "./migration_reports",
			Prefix:   "reports/",
		},
		Transfer: TransferConfig{
			Workers:         5,
			MaxObjectSizeMB: 5120,
			MaxAttempts:     3,
			RetryBackoffMs:  1000,
			RetryMaxDelayMs: 20000,
			ThrottleDelayMs: 100,
			ExportFallback:  true,
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
		},
		Log: logging.Config{
			Format: "text",
			Level:  "info",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.SourceDomain = getenvDefault("SOURCE_DOMAIN", cfg.SourceDomain)
	cfg.DestDomain = getenvDefault("DEST_DOMAIN", cfg.DestDomain)
	cfg.Remote.Driver = getenvDefault("REMOTE_DRIVER", cfg.Remote.Driver)
	cfg.Ledger.Backend = getenvDefault("LEDGER_BACKEND", cfg.Ledger.Backend)
	cfg.Ledger.SQLitePath = getenvDefault("LEDGER_SQLITE_PATH", cfg.Ledger.SQLitePath)
	cfg.Ledger.PostgresDSN = getenvDefault("LEDGER_POSTGRES_DSN", cfg.Ledger.PostgresDSN)
	cfg.Artifacts.Backend = getenvDefault("ARTIFACTS_BACKEND", cfg.Artifacts.Backend)
	cfg.Artifacts.LocalDir = getenvDefault("ARTIFACTS_LOCAL_DIR", cfg.Artifacts.LocalDir)
	cfg.Artifacts.GCSBucket = getenvDefault("ARTIFACTS_GCS_BUCKET", cfg.Artifacts.GCSBucket)
	cfg.Artifacts.S3Bucket = getenvDefault("ARTIFACTS_S3_BUCKET", cfg.Artifacts.S3Bucket)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)

	if v := os.Getenv("MAX_WORKERS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Transfer.Workers = parsed
		}
	}
	if v := os.Getenv("MAX_OBJECT_SIZE_MB"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Transfer.MaxObjectSizeMB = parsed
		}
	}
}

// Validate checks that required fields are present and consistent.
func (c Config) Validate() error {
	if c.SourceDomain == "" {
		return fmt.Errorf("source_domain is required")
	}
	if c.DestDomain == "" {
		return fmt.Errorf("dest_domain is required")
	}
	if c.Remote.Driver == "" {
		return fmt.Errorf("remote.driver is required")
	}
	switch c.Ledger.Backend {
	case "sqlite":
		if c.Ledger.SQLitePath == "" {
			return fmt.Errorf("ledger.sqlite_path required for sqlite backend")
		}
	case "postgres":
		if c.Ledger.PostgresDSN == "" {
			return fmt.Errorf("ledger.postgres_dsn required for postgres backend")
		}
	default:
		return fmt.Errorf("unknown ledger backend: %s", c.Ledger.Backend)
	}
	switch c.Artifacts.Backend {
	case "local":
		if c.Artifacts.LocalDir == "" {
			return fmt.Errorf("artifacts.local_dir required for local backend")
		}
	case "gcs":
		if c.Artifacts.GCSBucket == "" {
			return fmt.Errorf("artifacts.gcs_bucket required for gcs backend")
		}
	case "s3":
		if c.Artifacts.S3Bucket == "" {
			return fmt.Errorf("artifacts.s3_bucket required for s3 backend")
		}
	default:
		return fmt.Errorf("unknown artifacts backend: %s", c.Artifacts.Backend)
	}
	if c.Transfer.Workers < 1 {
		return fmt.Errorf("transfer.workers must be at least 1")
	}
	if c.Transfer.MaxAttempts < 1 {
		return fmt.Errorf("transfer.max_attempts must be at least 1")
	}
	return nil
}

// DomainMap returns the source→destination domain rename table used by
// access translation. Extra entries from config are merged in; the primary
// tenant pair always wins.
func (c Config) DomainMap() map[string]string {
	m := make(map[string]string, len(c.Transfer.DomainMapExtra)+1)
	for k, v := range c.Transfer.DomainMapExtra {
		m[k] = v
	}
	m[c.SourceDomain] = c.DestDomain
	return m
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
