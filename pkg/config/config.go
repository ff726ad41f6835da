package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	xdgAppName = "nexus"
	configFile = "config.yaml"
)

// Config holds all nexus configuration.
type Config struct {
	// DataDir holds the database, the credential store and the alert table.
	DataDir     string `yaml:"data_dir"`
	Database    string `yaml:"database"`
	Credentials string `yaml:"credentials"`
	AlertTable  string `yaml:"alert_table"`

	Server  ServerConfig  `yaml:"server"`
	Sync    SyncConfig    `yaml:"sync"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Google  GoogleConfig  `yaml:"google"`
	Insight InsightConfig `yaml:"insight"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// Token, when set, is required as a bearer token on every /api request.
	Token           string `yaml:"token"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type SyncConfig struct {
	Interval    string `yaml:"interval"`
	Concurrency int    `yaml:"concurrency"`
}

type HTTPConfig struct {
	Timeout     string `yaml:"timeout"`
	MaxRetries  int    `yaml:"max_retries"`
	BaseBackoff string `yaml:"base_backoff"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
}

// AlertsConfig selects which newly synced items raise alerts.
type AlertsConfig struct {
	DefectSeverities []string `yaml:"defect_severities"`
	TaskPriorities   []string `yaml:"task_priorities"`
}

type GoogleConfig struct {
	ClientSecrets string `yaml:"client_secrets"`
	AuthPort      string `yaml:"auth_port"`
}

type InsightConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	dataDir, err := GetConfigDir()
	if err != nil {
		dataDir = "."
	}
	return &Config{
		DataDir:     dataDir,
		Database:    "nexus.db",
		Credentials: "connections.json",
		AlertTable:  "alerts.json",
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "5s",
		},
		Sync: SyncConfig{
			Interval:    "15m",
			Concurrency: 4,
		},
		HTTP: HTTPConfig{
			Timeout:     "30s",
			MaxRetries:  3,
			BaseBackoff: "500ms",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Alerts: AlertsConfig{
			DefectSeverities: []string{"Critical"},
			TaskPriorities:   []string{"High"},
		},
		Google: GoogleConfig{
			ClientSecrets: "credentials.json",
			AuthPort:      "6789",
		},
		Insight: InsightConfig{
			Model: "gemini-2.5-flash",
		},
	}
}

func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the config at path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NEXUS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("NEXUS_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("NEXUS_API_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("NEXUS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("NEXUS_SYNC_INTERVAL"); v != "" {
		c.Sync.Interval = v
	}
	if v := os.Getenv("NEXUS_SYNC_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sync.Concurrency = n
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Insight.APIKey = v
	}
}

// Validate reports configuration that would make the service unusable.
func (c *Config) Validate() error {
	var problems []string
	if c.DataDir == "" {
		problems = append(problems, "data_dir is required")
	}
	for name, v := range map[string]string{
		"sync.interval":           c.Sync.Interval,
		"http.timeout":            c.HTTP.Timeout,
		"http.base_backoff":       c.HTTP.BaseBackoff,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if c.Sync.Concurrency < 0 {
		problems = append(problems, "sync.concurrency must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Resolve joins name onto DataDir unless it is already absolute.
func (c *Config) Resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

func (c *Config) DatabasePath() string    { return c.Resolve(c.Database) }
func (c *Config) CredentialsPath() string { return c.Resolve(c.Credentials) }
func (c *Config) AlertTablePath() string  { return c.Resolve(c.AlertTable) }

func (c *Config) SyncInterval() time.Duration {
	return parseDurationOr(c.Sync.Interval, 15*time.Minute)
}

func (c *Config) HTTPTimeout() time.Duration {
	return parseDurationOr(c.HTTP.Timeout, 30*time.Second)
}

func (c *Config) BaseBackoff() time.Duration {
	return parseDurationOr(c.HTTP.BaseBackoff, 500*time.Millisecond)
}

func (c *Config) ShutdownTimeout() time.Duration {
	return parseDurationOr(c.Server.ShutdownTimeout, 5*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
