// Package config loads Sentinel's runtime configuration: server/database
// settings from a YAML file, overridable by environment variables, plus
// a block of engine-wide policy defaults (EngineDefaults) that is loaded
// but not read by the engine.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulsewatch/sentinel/internal/db"
)

// EngineDefaults holds cluster-wide policy defaults loaded from YAML.
// Nothing reads them: monitor.Policy's methods fall back to their own
// built-in defaults when a monitor doesn't set an override.
type EngineDefaults struct {
	AlertThreshold               int           `yaml:"alertThreshold"`
	DegradedThresholdMs          int64         `yaml:"degradedThresholdMs"`
	SSLExpiryThresholdDays       int           `yaml:"sslExpiryThresholdDays"`
	ExpectedResponseTimeMs       int64         `yaml:"expectedResponseTimeMs"`
	ConsecutiveChecksForRecovery int           `yaml:"consecutiveChecksForRecovery"`
	DefaultInterval              time.Duration `yaml:"defaultInterval"`
	DefaultTimeout               time.Duration `yaml:"defaultTimeout"`
}

// SlackConfig configures outbound incident notifications.
type SlackConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
	Enabled    bool   `yaml:"enabled"`
}

// OAuthConfig holds Google SSO credentials loaded from YAML or the
// environment. The SSO handlers do not read it; they take their
// sso.google.* values from the settings store.
type OAuthConfig struct {
	GoogleClientID     string `yaml:"googleClientId"`
	GoogleClientSecret string `yaml:"googleClientSecret"`
	RedirectURL        string `yaml:"redirectUrl"`
}

// SchedulerConfig tunes the worker pool that runs probes.
type SchedulerConfig struct {
	WorkerCount   int `yaml:"workerCount"`
	QueueCapacity int `yaml:"queueCapacity"`
}

// Config is Sentinel's full runtime configuration.
type Config struct {
	ListenAddr    string          `yaml:"listenAddr"`
	SessionSecret string          `yaml:"sessionSecret"`
	CookieSecure  bool            `yaml:"cookieSecure"`
	AdminSecret   string          `yaml:"adminSecret"`
	DB            db.DBConfig     `yaml:"db"`
	Engine        EngineDefaults  `yaml:"engine"`
	Slack         SlackConfig     `yaml:"slack"`
	OAuth         OAuthConfig     `yaml:"oauth"`
	Scheduler     SchedulerConfig `yaml:"scheduler"`
}

// Default returns Sentinel's baseline configuration before any file or
// environment overrides are applied.
func Default() Config {
	return Config{
		ListenAddr:   ":9090",
		CookieSecure: true,
		DB: db.DBConfig{
			Type: db.DialectSQLite,
			Path: "sentinel.db",
		},
		Engine: EngineDefaults{
			AlertThreshold:               2,
			SSLExpiryThresholdDays:       30,
			ExpectedResponseTimeMs:       1000,
			ConsecutiveChecksForRecovery: 1,
			DefaultInterval:              60 * time.Second,
			DefaultTimeout:               10 * time.Second,
		},
		Scheduler: SchedulerConfig{
			WorkerCount:   10,
			QueueCapacity: 100,
		},
	}
}

// Load builds configuration starting from Default, then overlaying a YAML
// file (if CONFIG_FILE or ./sentinel.yaml exists), then environment
// variables, which always win. Environment variables mirror the teacher's
// convention of one variable per top-level setting.
func Load() (Config, error) {
	cfg := Default()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "sentinel.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if cfg.DB.Type == db.DialectSQLite && cfg.DB.Path == "" {
		cfg.DB.Path = "sentinel.db"
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		cfg.CookieSecure = v == "true" || v == "1"
	}
	if v := os.Getenv("ADMIN_SECRET"); v != "" {
		cfg.AdminSecret = v
	}
	if v := os.Getenv("DB_TYPE"); v != "" {
		cfg.DB.Type = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DB.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DB.URL = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Slack.WebhookURL = v
		cfg.Slack.Enabled = true
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.OAuth.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.OAuth.GoogleClientSecret = v
	}
	if v := os.Getenv("OAUTH_REDIRECT_URL"); v != "" {
		cfg.OAuth.RedirectURL = v
	}
}
