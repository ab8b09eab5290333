// Package main provides the pawwatch server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/security"
)

// Record backends.
const (
	BackendSQLite     = "sqlite"
	BackendClickHouse = "clickhouse"
	BackendPostgres   = "postgres"
)

// Push transports.
const (
	PushNone    = "none"
	PushWebhook = "webhook"
	PushKafka   = "kafka"
)

// Config represents the server configuration.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Records       RecordsConfig       `yaml:"records"`
	Detection     DetectionConfig     `yaml:"detection"`
	Sweep         SweepConfig         `yaml:"sweep"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Events        EventsConfig        `yaml:"events"`
	HTTP          HTTPConfig          `yaml:"http"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Log           LogConfig           `yaml:"log"`
	Verbose       bool                `yaml:"-"` // set via CLI flag
}

// DatabaseConfig contains the SQLite rule and trigger store settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // default: ./data/pawwatch.db
	// HistoryRetention prunes trigger history older than this after each
	// sweep. Empty keeps history forever.
	HistoryRetention string `yaml:"history_retention"`
}

// RecordsConfig selects where health event records are read from.
type RecordsConfig struct {
	Backend    string           `yaml:"backend"` // sqlite, clickhouse or postgres
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Postgres   PostgresConfig   `yaml:"postgres"`
}

// ClickHouseConfig contains ClickHouse connection settings.
type ClickHouseConfig struct {
	Addresses     []string `yaml:"addresses"`
	Database      string   `yaml:"database"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	DialTimeout   string   `yaml:"dial_timeout"`
	Compression   bool     `yaml:"compression"`
	RetentionDays int      `yaml:"retention_days"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// DetectionConfig contains the detector windows and thresholds. It is the
// only section applied on hot reload.
type DetectionConfig struct {
	AnalysisWindowDays int                 `yaml:"analysis_window_days"`
	BaselineWindowDays int                 `yaml:"baseline_window_days"`
	Thresholds         detector.Thresholds `yaml:"thresholds"`
}

// SweepConfig contains the periodic batch sweep settings.
type SweepConfig struct {
	Interval       string  `yaml:"interval"` // default: 1h, "0" disables the loop
	Workers        int     `yaml:"workers"`
	SubjectTimeout string  `yaml:"subject_timeout"`
	LaunchRate     float64 `yaml:"launch_rate"` // subjects per second, 0 = unlimited
	Timezone       string  `yaml:"timezone"`    // daily cap boundary, default UTC
	RunOnStart     bool    `yaml:"run_on_start"`
}

// NotificationsConfig contains delivery channel settings.
type NotificationsConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Email     EmailConfig     `yaml:"email"`
	Push      PushConfig      `yaml:"push"`
}

// RateLimitConfig contains the global delivery rate limit.
type RateLimitConfig struct {
	Enabled      *bool  `yaml:"enabled"` // default: true
	MaxPerWindow int    `yaml:"max_per_window"`
	Window       string `yaml:"window"`
}

// EmailConfig contains SMTP settings.
type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// PushConfig selects the push transport.
type PushConfig struct {
	Transport    string      `yaml:"transport"` // none, webhook or kafka
	WebhookURL   string      `yaml:"webhook_url"`
	WebhookToken string      `yaml:"webhook_token"`
	Timeout      string      `yaml:"timeout"`
	Kafka        KafkaConfig `yaml:"kafka"`
}

// KafkaConfig contains the Kafka push topic settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// EventsConfig contains the trigger event bus settings.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"` // empty disables publishing
	SubjectPrefix string `yaml:"subject_prefix"`
}

// HTTPConfig contains the API server settings.
type HTTPConfig struct {
	Address        string  `yaml:"address"`
	Token          string  `yaml:"token"`
	RateLimitPerIP float64 `yaml:"rate_limit_per_ip"`
	RequestTimeout string  `yaml:"request_timeout"`
	// TLSCert and TLSKey enable HTTPS. ClientCA additionally requires client
	// certificates.
	TLSCert  string `yaml:"tls_cert"`
	TLSKey   string `yaml:"tls_key"`
	ClientCA string `yaml:"client_ca"`
}

// TLS returns the listener TLS settings.
func (h HTTPConfig) TLS() *security.ServerTLSConfig {
	return &security.ServerTLSConfig{CertFile: h.TLSCert, KeyFile: h.TLSKey, ClientCAFile: h.ClientCA}
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"` // default: true
	Address string `yaml:"address"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Pretty bool   `yaml:"pretty"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses, defaults and validates YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	// Thresholds are prefilled so a file may override single values.
	cfg := &Config{Detection: DetectionConfig{Thresholds: detector.DefaultThresholds()}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "./data/pawwatch.db"
	}
	if c.Records.Backend == "" {
		c.Records.Backend = BackendSQLite
	}
	if c.Records.ClickHouse.Database == "" {
		c.Records.ClickHouse.Database = "pawwatch"
	}

	defaults := detector.DefaultOptions()
	if c.Detection.AnalysisWindowDays == 0 {
		c.Detection.AnalysisWindowDays = defaults.AnalysisWindowDays
	}
	if c.Detection.BaselineWindowDays == 0 {
		c.Detection.BaselineWindowDays = defaults.BaselineWindowDays
	}
	if c.Detection.Thresholds == (detector.Thresholds{}) {
		c.Detection.Thresholds = defaults.Thresholds
	}

	if c.Sweep.Interval == "" {
		c.Sweep.Interval = "1h"
	}
	if c.Sweep.Workers == 0 {
		c.Sweep.Workers = 8
	}
	if c.Sweep.SubjectTimeout == "" {
		c.Sweep.SubjectTimeout = "30s"
	}
	if c.Sweep.Timezone == "" {
		c.Sweep.Timezone = "UTC"
	}

	if c.Notifications.RateLimit.Enabled == nil {
		enabled := true
		c.Notifications.RateLimit.Enabled = &enabled
	}
	if c.Notifications.RateLimit.MaxPerWindow == 0 {
		c.Notifications.RateLimit.MaxPerWindow = 60
	}
	if c.Notifications.RateLimit.Window == "" {
		c.Notifications.RateLimit.Window = "1m"
	}
	if c.Notifications.Email.Port == 0 {
		c.Notifications.Email.Port = 587
	}
	if c.Notifications.Push.Transport == "" {
		c.Notifications.Push.Transport = PushNone
	}
	if c.Notifications.Push.Timeout == "" {
		c.Notifications.Push.Timeout = "10s"
	}

	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.RequestTimeout == "" {
		c.HTTP.RequestTimeout = "30s"
	}

	if c.Metrics.Enabled == nil {
		enabled := true
		c.Metrics.Enabled = &enabled
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.HistoryRetention != "" {
		if err := positiveDuration("database.history_retention", c.Database.HistoryRetention); err != nil {
			return err
		}
		// Caps are counted from trigger history, so it must cover the weekly window.
		if d := mustDuration(c.Database.HistoryRetention); d < alerting.UsageWindow {
			return fmt.Errorf("database.history_retention (%s) must be at least %s", d, alerting.UsageWindow)
		}
	}

	switch c.Records.Backend {
	case BackendSQLite:
	case BackendClickHouse:
		if len(c.Records.ClickHouse.Addresses) == 0 {
			return fmt.Errorf("records.clickhouse.addresses is required for the clickhouse backend")
		}
		if c.Records.ClickHouse.DialTimeout != "" {
			if err := positiveDuration("records.clickhouse.dial_timeout", c.Records.ClickHouse.DialTimeout); err != nil {
				return err
			}
		}
	case BackendPostgres:
		if c.Records.Postgres.DSN == "" {
			return fmt.Errorf("records.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("records.backend %q is not one of sqlite, clickhouse, postgres", c.Records.Backend)
	}

	if err := c.Detection.Options().Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}

	if c.Sweep.Interval != "0" {
		if err := positiveDuration("sweep.interval", c.Sweep.Interval); err != nil {
			return err
		}
	}
	if c.Sweep.Workers < 1 {
		return fmt.Errorf("sweep.workers must be positive")
	}
	if err := positiveDuration("sweep.subject_timeout", c.Sweep.SubjectTimeout); err != nil {
		return err
	}
	if c.Sweep.LaunchRate < 0 {
		return fmt.Errorf("sweep.launch_rate must not be negative")
	}
	if _, err := time.LoadLocation(c.Sweep.Timezone); err != nil {
		return fmt.Errorf("sweep.timezone: %w", err)
	}

	if c.Notifications.RateLimit.MaxPerWindow < 1 {
		return fmt.Errorf("notifications.rate_limit.max_per_window must be positive")
	}
	if err := positiveDuration("notifications.rate_limit.window", c.Notifications.RateLimit.Window); err != nil {
		return err
	}
	if email := c.Notifications.Email; email.Enabled {
		if email.Host == "" {
			return fmt.Errorf("notifications.email.host is required when email is enabled")
		}
		if email.From == "" {
			return fmt.Errorf("notifications.email.from is required when email is enabled")
		}
	}
	push := c.Notifications.Push
	switch push.Transport {
	case PushNone:
	case PushWebhook:
		if push.WebhookURL == "" {
			return fmt.Errorf("notifications.push.webhook_url is required for the webhook transport")
		}
		if err := positiveDuration("notifications.push.timeout", push.Timeout); err != nil {
			return err
		}
	case PushKafka:
		if len(push.Kafka.Brokers) == 0 || push.Kafka.Topic == "" {
			return fmt.Errorf("notifications.push.kafka.brokers and topic are required for the kafka transport")
		}
	default:
		return fmt.Errorf("notifications.push.transport %q is not one of none, webhook, kafka", push.Transport)
	}

	if c.HTTP.Address == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.HTTP.RateLimitPerIP < 0 {
		return fmt.Errorf("http.rate_limit_per_ip must not be negative")
	}
	if err := c.HTTP.TLS().Validate(); err != nil {
		return fmt.Errorf("http tls: %w", err)
	}
	if err := positiveDuration("http.request_timeout", c.HTTP.RequestTimeout); err != nil {
		return err
	}
	if c.MetricsEnabled() && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics are enabled")
	}
	return nil
}

// Options returns the detector options for this section.
func (d DetectionConfig) Options() detector.Options {
	return detector.Options{
		AnalysisWindowDays: d.AnalysisWindowDays,
		BaselineWindowDays: d.BaselineWindowDays,
		Thresholds:         d.Thresholds,
	}
}

// SweepInterval returns the sweep period. Zero disables the loop.
func (c *Config) SweepInterval() time.Duration {
	if c.Sweep.Interval == "0" {
		return 0
	}
	return mustDuration(c.Sweep.Interval)
}

// SubjectTimeout returns the per-subject evaluation bound.
func (c *Config) SubjectTimeout() time.Duration {
	return mustDuration(c.Sweep.SubjectTimeout)
}

// Location returns the timezone that defines the daily cap boundary.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Sweep.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HistoryRetention returns the trigger history retention. Zero keeps
// history forever.
func (c *Config) HistoryRetention() time.Duration {
	return mustDuration(c.Database.HistoryRetention)
}

// RateLimitEnabled reports whether the delivery rate limit is active.
func (c *Config) RateLimitEnabled() bool {
	return c.Notifications.RateLimit.Enabled == nil || *c.Notifications.RateLimit.Enabled
}

// MetricsEnabled reports whether the metrics server runs.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

func positiveDuration(field, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	return nil
}

// mustDuration parses a duration already checked by Validate. Empty or
// invalid values yield zero.
func mustDuration(value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}
