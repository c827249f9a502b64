// Package config loads cqlmigrate's configuration from a YAML file, a
// .env file, and environment variables, in that precedence order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a migration run.
type Config struct {
	Migration MigrationConfig `yaml:"migration"`
	Database  DatabaseConfig  `yaml:"database"`
	Lock      LockConfig      `yaml:"lock"`
	Status    StatusConfig    `yaml:"status"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Debug     bool            `yaml:"debug"`
}

// MigrationConfig locates and classifies the script tree.
type MigrationConfig struct {
	Root              string `yaml:"root"`
	InitFilename      string `yaml:"init_filename"`
	BootstrapFilename string `yaml:"bootstrap_filename"`
}

// DatabaseConfig holds Cassandra connection settings.
type DatabaseConfig struct {
	ContactPoints []string `yaml:"contact_points"`
	TimeoutMS     int      `yaml:"timeout_ms"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	LocalDC       string   `yaml:"local_dc"`
}

// LockConfig controls the distributed mutual-exclusion lock.
type LockConfig struct {
	Name string `yaml:"name"`
}

// StatusConfig controls the optional HTTP status surface.
type StatusConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Port           string `yaml:"port"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
}

// ArchiveConfig controls the optional S3-compatible audit archiver.
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// Load reads a .env file (if present), then config.yaml (or CONFIG_PATH),
// then applies environment variable overrides, then validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the defaults from the configuration table.
func DefaultConfig() *Config {
	return &Config{
		Migration: MigrationConfig{
			Root:              "/schema",
			InitFilename:      "cqlmigrate.cql",
			BootstrapFilename: "bootstrap.cql",
		},
		Database: DatabaseConfig{
			ContactPoints: []string{"localhost"},
			TimeoutMS:     30000,
		},
		Lock: LockConfig{
			Name: "MIGRATION_LOCK",
		},
		Status: StatusConfig{
			Enabled:        false,
			Port:           ":7070",
			PollIntervalMS: 1000,
		},
		Archive: ArchiveConfig{
			Enabled: false,
		},
		Debug: false,
	}
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MIGRATION_ROOT"); v != "" {
		c.Migration.Root = v
	}
	if v := os.Getenv("MIGRATION_INIT_FILENAME"); v != "" {
		c.Migration.InitFilename = v
	}
	if v := os.Getenv("MIGRATION_BOOTSTRAP_FILENAME"); v != "" {
		c.Migration.BootstrapFilename = v
	}

	if v := os.Getenv("CONTACT_POINTS"); v != "" {
		c.Database.ContactPoints = strings.Fields(v)
	}
	if v := getEnvInt("MIGRATION_CLIENT_TIMEOUT_MS", 0); v != 0 {
		c.Database.TimeoutMS = v
	}
	if v := os.Getenv("CASSANDRA_USERNAME"); v != "" {
		c.Database.Username = v
	}
	if v := os.Getenv("CASSANDRA_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("CASSANDRA_LOCAL_DC"); v != "" {
		c.Database.LocalDC = v
	}

	if v := os.Getenv("MIGRATION_LOCK_NAME"); v != "" {
		c.Lock.Name = v
	}

	if v := os.Getenv("STATUS_ENABLED"); v != "" {
		c.Status.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("STATUS_PORT"); v != "" {
		c.Status.Port = v
	}
	if v := getEnvInt("SCHEMA_AGREEMENT_POLL_INTERVAL_MS", 0); v != 0 {
		c.Status.PollIntervalMS = v
	}

	if v := os.Getenv("ARCHIVE_ENABLED"); v != "" {
		c.Archive.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		c.Archive.Bucket = v
	}
	if v := os.Getenv("ARCHIVE_REGION"); v != "" {
		c.Archive.Region = v
	}
	if v := os.Getenv("ARCHIVE_ENDPOINT"); v != "" {
		c.Archive.Endpoint = v
	}
	if v := os.Getenv("ARCHIVE_PREFIX"); v != "" {
		c.Archive.Prefix = v
	}
	if v := os.Getenv("ARCHIVE_ACCESS_KEY_ID"); v != "" {
		c.Archive.AccessKeyID = v
	}
	if v := os.Getenv("ARCHIVE_SECRET_ACCESS_KEY"); v != "" {
		c.Archive.SecretAccessKey = v
	}
	if v := os.Getenv("ARCHIVE_USE_PATH_STYLE"); v != "" {
		c.Archive.UsePathStyle = v == "true" || v == "1"
	}

	if v := os.Getenv("DEBUG"); v != "" {
		c.Debug = v == "true" || v == "1"
	}
}

// ClientTimeout returns the per-statement driver timeout as a duration.
func (c *Config) ClientTimeout() time.Duration {
	return time.Duration(c.Database.TimeoutMS) * time.Millisecond
}

// PollInterval returns the schema-agreement retry interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Status.PollIntervalMS) * time.Millisecond
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Migration.Root == "" {
		return fmt.Errorf("migration root is required")
	}
	if c.Migration.InitFilename == "" {
		return fmt.Errorf("init filename is required")
	}
	if c.Migration.BootstrapFilename == "" {
		return fmt.Errorf("bootstrap filename is required")
	}
	if len(c.Database.ContactPoints) == 0 {
		return fmt.Errorf("at least one contact point is required")
	}
	if c.Database.TimeoutMS <= 0 {
		return fmt.Errorf("migration client timeout must be positive")
	}
	if c.Lock.Name == "" {
		return fmt.Errorf("lock name is required")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive bucket is required when archiving is enabled")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
