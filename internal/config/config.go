// Package config loads alphalite settings. Defaults are overlaid by an
// optional YAML file, which is in turn overlaid by environment variables
// with the ALPHALITE_ prefix.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/alphalite/internal/backup"
	"github.com/scrypster/alphalite/internal/embedding"
	"github.com/scrypster/alphalite/internal/logging"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all alphalite settings.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Backup    BackupConfig    `yaml:"backup"`
	Log       LogConfig       `yaml:"log"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // sqlite, postgres or memory (default: sqlite)
	DataPath    string `yaml:"data_path"`    // directory for the database, events and secrets (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // required when Engine is postgres
}

// EmbeddingConfig selects the embedding provider chain.
type EmbeddingConfig struct {
	Provider      string        `yaml:"provider"` // openai, ollama or hash (default: openai)
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	Dimensions    int           `yaml:"dimensions"` // pins the vector size; 0 learns it from the first embedding
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	CacheBytes    int64         `yaml:"cache_bytes"`
}

// RetrievalConfig tunes similarity search.
type RetrievalConfig struct {
	DefaultK int `yaml:"default_k"` // results returned when the caller does not say (default: 3)
}

// NotifierConfig selects how reminders are delivered.
type NotifierConfig struct {
	Kind           string   `yaml:"kind"`            // timer or webhook (default: timer)
	WebhookURL     string   `yaml:"webhook_url"`     // required when Kind is webhook
	Listen         string   `yaml:"listen"`          // daemon websocket address (default: 127.0.0.1:6464)
	AllowedOrigins []string `yaml:"allowed_origins"` // extra websocket origins
}

// BackupConfig controls the daemon's snapshot loop.
type BackupConfig struct {
	Enabled   bool                   `yaml:"enabled"`
	Interval  time.Duration          `yaml:"interval"` // default: 24h
	Dir       string                 `yaml:"dir"`      // default: {data_path}/backups
	Verify    bool                   `yaml:"verify"`
	Retention backup.RetentionPolicy `yaml:"retention"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error (default: info)
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		Embedding: EmbeddingConfig{
			Provider:      "openai",
			Timeout:       30 * time.Second,
			RatePerSecond: 5,
			Burst:         10,
			CacheBytes:    16 << 20,
		},
		Retrieval: RetrievalConfig{DefaultK: 3},
		Notifier: NotifierConfig{
			Kind:   "timer",
			Listen: "127.0.0.1:6464",
		},
		Backup: BackupConfig{
			Interval:  24 * time.Hour,
			Verify:    true,
			Retention: backup.DefaultRetention,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment, then validates it. When path is
// empty ALPHALITE_CONFIG is consulted.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("ALPHALITE_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return goerr.Wrap(err, "config: failed to read file", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return goerr.Wrap(errors.Join(ErrInvalid, err), "config: failed to parse file", goerr.V("path", path))
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Storage.Engine = getEnv("ALPHALITE_STORAGE_ENGINE", c.Storage.Engine)
	c.Storage.DataPath = getEnv("ALPHALITE_DATA_PATH", c.Storage.DataPath)
	c.Storage.PostgresDSN = getEnv("ALPHALITE_POSTGRES_DSN", c.Storage.PostgresDSN)

	c.Embedding.Provider = getEnv("ALPHALITE_EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("ALPHALITE_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.BaseURL = getEnv("ALPHALITE_EMBEDDING_URL", c.Embedding.BaseURL)
	c.Embedding.Dimensions = getEnvInt("ALPHALITE_EMBEDDING_DIMENSIONS", c.Embedding.Dimensions)
	c.Embedding.Timeout = getEnvDuration("ALPHALITE_EMBEDDING_TIMEOUT", c.Embedding.Timeout)
	c.Embedding.RatePerSecond = getEnvFloat("ALPHALITE_EMBEDDING_RATE", c.Embedding.RatePerSecond)
	c.Embedding.Burst = getEnvInt("ALPHALITE_EMBEDDING_BURST", c.Embedding.Burst)
	c.Embedding.CacheBytes = int64(getEnvInt("ALPHALITE_EMBEDDING_CACHE_BYTES", int(c.Embedding.CacheBytes)))

	c.Retrieval.DefaultK = getEnvInt("ALPHALITE_DEFAULT_K", c.Retrieval.DefaultK)

	c.Notifier.Kind = getEnv("ALPHALITE_NOTIFIER", c.Notifier.Kind)
	c.Notifier.WebhookURL = getEnv("ALPHALITE_WEBHOOK_URL", c.Notifier.WebhookURL)
	c.Notifier.Listen = getEnv("ALPHALITE_LISTEN", c.Notifier.Listen)
	if origins := getEnv("ALPHALITE_ALLOWED_ORIGINS", ""); origins != "" {
		c.Notifier.AllowedOrigins = splitList(origins)
	}

	c.Backup.Enabled = getEnvBool("ALPHALITE_BACKUP_ENABLED", c.Backup.Enabled)
	c.Backup.Interval = getEnvDuration("ALPHALITE_BACKUP_INTERVAL", c.Backup.Interval)
	c.Backup.Dir = getEnv("ALPHALITE_BACKUP_DIR", c.Backup.Dir)
	c.Backup.Verify = getEnvBool("ALPHALITE_BACKUP_VERIFY", c.Backup.Verify)
	c.Backup.Retention.Hourly = getEnvInt("ALPHALITE_BACKUP_RETENTION_HOURLY", c.Backup.Retention.Hourly)
	c.Backup.Retention.Daily = getEnvInt("ALPHALITE_BACKUP_RETENTION_DAILY", c.Backup.Retention.Daily)
	c.Backup.Retention.Weekly = getEnvInt("ALPHALITE_BACKUP_RETENTION_WEEKLY", c.Backup.Retention.Weekly)
	c.Backup.Retention.Monthly = getEnvInt("ALPHALITE_BACKUP_RETENTION_MONTHLY", c.Backup.Retention.Monthly)

	c.Log.Level = getEnv("ALPHALITE_LOG_LEVEL", c.Log.Level)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	invalid := func(msg string, values ...goerr.Option) error {
		return goerr.Wrap(ErrInvalid, "config: "+msg, values...)
	}

	switch c.Storage.Engine {
	case "sqlite", "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return invalid("postgres engine requires postgres_dsn")
		}
	default:
		return invalid("unknown storage engine", goerr.V("engine", c.Storage.Engine))
	}
	if c.Storage.DataPath == "" {
		return invalid("data_path is required")
	}

	switch c.Embedding.Provider {
	case "openai", "ollama", "hash":
	default:
		return invalid("unknown embedding provider", goerr.V("provider", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions < 0 || c.Embedding.RatePerSecond < 0 || c.Embedding.Burst < 0 || c.Embedding.CacheBytes < 0 {
		return invalid("embedding limits must not be negative")
	}

	if c.Retrieval.DefaultK < 1 {
		return invalid("default_k must be at least 1", goerr.V("default_k", c.Retrieval.DefaultK))
	}

	switch c.Notifier.Kind {
	case "timer":
	case "webhook":
		if c.Notifier.WebhookURL == "" {
			return invalid("webhook notifier requires webhook_url")
		}
	default:
		return invalid("unknown notifier", goerr.V("kind", c.Notifier.Kind))
	}

	if c.Backup.Enabled && c.Backup.Interval <= 0 {
		return invalid("backup interval must be positive", goerr.V("interval", c.Backup.Interval))
	}

	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return invalid("unknown log level", goerr.V("level", c.Log.Level))
	}
	return nil
}

// DBPath is the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataPath, "alphalite.db")
}

// SecretsPath is the YAML secrets file.
func (c *Config) SecretsPath() string {
	return filepath.Join(c.Storage.DataPath, "secrets.yaml")
}

// BackupDir is where snapshots go.
func (c *Config) BackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.Storage.DataPath, "backups")
}

// EmbeddingProvider returns the provider factory settings.
func (c *Config) EmbeddingProvider() embedding.Config {
	e := c.Embedding
	return embedding.Config{
		Provider:      e.Provider,
		Model:         e.Model,
		BaseURL:       e.BaseURL,
		Dimensions:    e.Dimensions,
		Timeout:       e.Timeout,
		RatePerSecond: e.RatePerSecond,
		Burst:         e.Burst,
		CacheBytes:    e.CacheBytes,
	}
}

// BackupService returns the backup service settings.
func (c *Config) BackupService() backup.Config {
	return backup.Config{
		DBPath:    c.DBPath(),
		Dir:       c.BackupDir(),
		Interval:  c.Backup.Interval,
		Retention: c.Backup.Retention,
		Verify:    c.Backup.Verify,
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt falls back to defaultValue when the variable is unset or not an
// integer.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool recognizes true/1/yes and false/0/no in any case.
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
