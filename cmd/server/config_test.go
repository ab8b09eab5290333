package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Records.Backend != BackendSQLite {
		t.Errorf("backend = %q, want sqlite", cfg.Records.Backend)
	}
	if cfg.SweepInterval() != time.Hour {
		t.Errorf("SweepInterval() = %v, want 1h", cfg.SweepInterval())
	}
	if cfg.SubjectTimeout() != 30*time.Second {
		t.Errorf("SubjectTimeout() = %v, want 30s", cfg.SubjectTimeout())
	}
	if !cfg.RateLimitEnabled() || !cfg.MetricsEnabled() {
		t.Error("rate limit and metrics should default to enabled")
	}
	if cfg.Location() != time.UTC {
		t.Errorf("Location() = %v, want UTC", cfg.Location())
	}
}

func TestParseConfig_PartialThresholds(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
detection:
  analysis_window_days: 7
  thresholds:
    min_per_week: 2
`))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.Detection.AnalysisWindowDays != 7 {
		t.Errorf("analysis_window_days = %d, want 7", cfg.Detection.AnalysisWindowDays)
	}
	if cfg.Detection.Thresholds.MinPerWeek != 2 {
		t.Errorf("min_per_week = %v, want 2", cfg.Detection.Thresholds.MinPerWeek)
	}
	if cfg.Detection.Thresholds.MaxPerWeek != 21 {
		t.Errorf("max_per_week = %v, want default 21", cfg.Detection.Thresholds.MaxPerWeek)
	}
}

func TestParseConfig_DisableFlags(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
sweep:
  interval: "0"
notifications:
  rate_limit:
    enabled: false
metrics:
  enabled: false
`))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.SweepInterval() != 0 {
		t.Errorf("SweepInterval() = %v, want 0", cfg.SweepInterval())
	}
	if cfg.RateLimitEnabled() {
		t.Error("rate limit should be disabled")
	}
	if cfg.MetricsEnabled() {
		t.Error("metrics should be disabled")
	}
}

func TestConfigValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Records.Backend = "mongo" },
			wantErr: "records.backend",
		},
		{
			name:    "clickhouse without addresses",
			mutate:  func(c *Config) { c.Records.Backend = BackendClickHouse },
			wantErr: "records.clickhouse.addresses",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Records.Backend = BackendPostgres },
			wantErr: "records.postgres.dsn",
		},
		{
			name:    "bad sweep interval",
			mutate:  func(c *Config) { c.Sweep.Interval = "hourly" },
			wantErr: "sweep.interval",
		},
		{
			name:    "negative subject timeout",
			mutate:  func(c *Config) { c.Sweep.SubjectTimeout = "-1s" },
			wantErr: "sweep.subject_timeout",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Sweep.Workers = 0 },
			wantErr: "sweep.workers",
		},
		{
			name:    "unknown timezone",
			mutate:  func(c *Config) { c.Sweep.Timezone = "Mars/Olympus" },
			wantErr: "sweep.timezone",
		},
		{
			name: "inverted thresholds",
			mutate: func(c *Config) {
				c.Detection.Thresholds.MinPerWeek = 30
			},
			wantErr: "detection",
		},
		{
			name:    "email without host",
			mutate:  func(c *Config) { c.Notifications.Email.Enabled = true },
			wantErr: "notifications.email.host",
		},
		{
			name:    "webhook without url",
			mutate:  func(c *Config) { c.Notifications.Push.Transport = PushWebhook },
			wantErr: "notifications.push.webhook_url",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *Config) { c.Notifications.Push.Transport = PushKafka },
			wantErr: "notifications.push.kafka",
		},
		{
			name:    "unknown push transport",
			mutate:  func(c *Config) { c.Notifications.Push.Transport = "sms" },
			wantErr: "notifications.push.transport",
		},
		{
			name:    "bad history retention",
			mutate:  func(c *Config) { c.Database.HistoryRetention = "90 days" },
			wantErr: "database.history_retention",
		},
		{
			name:    "history retention shorter than a day",
			mutate:  func(c *Config) { c.Database.HistoryRetention = "1h" },
			wantErr: "database.history_retention",
		},
		{
			name:    "history retention shorter than the weekly cap window",
			mutate:  func(c *Config) { c.Database.HistoryRetention = "167h" },
			wantErr: "must be at least 168h",
		},
		{
			name:    "tls cert without key",
			mutate:  func(c *Config) { c.HTTP.TLSCert = "server.crt" },
			wantErr: "http tls",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pawwatch.yaml")
	content := `
database:
  path: /var/lib/pawwatch/pawwatch.db
  history_retention: 2160h
records:
  backend: clickhouse
  clickhouse:
    addresses: ["localhost:9000"]
    dial_timeout: 3s
sweep:
  interval: 15m
  timezone: Europe/Berlin
events:
  nats_url: nats://localhost:4222
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.HistoryRetention() != 2160*time.Hour {
		t.Errorf("HistoryRetention() = %v, want 2160h", cfg.HistoryRetention())
	}
	if cfg.Records.ClickHouse.Database != "pawwatch" {
		t.Errorf("clickhouse database = %q, want default pawwatch", cfg.Records.ClickHouse.Database)
	}
	if cfg.SweepInterval() != 15*time.Minute {
		t.Errorf("SweepInterval() = %v, want 15m", cfg.SweepInterval())
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Errorf("Location() = %v, want Europe/Berlin", cfg.Location())
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
