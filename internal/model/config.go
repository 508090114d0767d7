package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MailboxConfig holds the IMAP/SMTP connection settings. The password is
// not part of the file; it is resolved through the credential package.
type MailboxConfig struct {
	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort int    `mapstructure:"imap_port" yaml:"imap_port"`
	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port" yaml:"smtp_port"`

	// Account is the full email address used to log in and as sender.
	Account string `mapstructure:"account" yaml:"account"`

	// TLS selects implicit TLS for IMAP; false means STARTTLS on a plain
	// connection. SMTPTLS does the same for submission.
	TLS     bool `mapstructure:"tls" yaml:"tls"`
	SMTPTLS bool `mapstructure:"smtp_tls" yaml:"smtp_tls"`
}

// AnalysisConfig holds the settings for the remote analysis job API.
type AnalysisConfig struct {
	BaseURL           string `mapstructure:"base_url" yaml:"base_url"`
	AssistantID       string `mapstructure:"assistant_id" yaml:"assistant_id"`
	MaxAttempts       int    `mapstructure:"max_attempts" yaml:"max_attempts"`
	PollIntervalMS    int    `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	RetryBackoffSec   int    `mapstructure:"retry_backoff_sec" yaml:"retry_backoff_sec"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
}

// PollInterval returns the pause between job status polls.
func (c AnalysisConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// RetryBackoff returns the fixed delay before resubmitting a failed job.
func (c AnalysisConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSec) * time.Second
}

// RequestTimeout returns the per-request HTTP timeout.
func (c AnalysisConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// SessionConfig holds the per-session limits.
type SessionConfig struct {
	MaxMessagesPerFetch int `mapstructure:"max_messages_per_fetch" yaml:"max_messages_per_fetch"`
	MaxFetchesPerWindow int `mapstructure:"max_fetches_per_window" yaml:"max_fetches_per_window"`
	WindowMinutes       int `mapstructure:"window_minutes" yaml:"window_minutes"`
}

// Window returns the rate-limit window duration.
func (c SessionConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Mailbox  MailboxConfig  `mapstructure:"mailbox" yaml:"mailbox"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Display  DisplayConfig  `mapstructure:"display" yaml:"display"`
}

// MissingFields lists the settings that must be filled in before a fetch
// can run. Secrets are checked separately.
func (c *AppConfig) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(c.Mailbox.IMAPHost) == "" {
		missing = append(missing, "mailbox.imap_host")
	}
	if strings.TrimSpace(c.Mailbox.SMTPHost) == "" {
		missing = append(missing, "mailbox.smtp_host")
	}
	if strings.TrimSpace(c.Mailbox.Account) == "" {
		missing = append(missing, "mailbox.account")
	}
	if strings.TrimSpace(c.Analysis.AssistantID) == "" {
		missing = append(missing, "analysis.assistant_id")
	}
	return missing
}

// ConfigDir returns ~/.config/mailbuddy, or "." if the home directory
// cannot be determined.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailbuddy")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailbuddy/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaults maps every config key to its default value.
var defaults = map[string]any{
	"mailbox.imap_port":              993,
	"mailbox.smtp_host":              "smtp.gmail.com",
	"mailbox.smtp_port":              465,
	"mailbox.tls":                    true,
	"mailbox.smtp_tls":               true,
	"analysis.base_url":              "https://api.openai.com/v1",
	"analysis.max_attempts":          7,
	"analysis.poll_interval_ms":      500,
	"analysis.retry_backoff_sec":     21,
	"analysis.request_timeout_sec":   60,
	"session.max_messages_per_fetch": 5,
	"session.max_fetches_per_window": 5,
	"session.window_minutes":         60,
	"log.level":                      "info",
	"display.theme":                  "default",
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Mailbox: MailboxConfig{
			IMAPPort: 993,
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 465,
			TLS:      true,
			SMTPTLS:  true,
		},
		Analysis: AnalysisConfig{
			BaseURL:           "https://api.openai.com/v1",
			MaxAttempts:       7,
			PollIntervalMS:    500,
			RetryBackoffSec:   21,
			RequestTimeoutSec: 60,
		},
		Session: SessionConfig{
			MaxMessagesPerFetch: 5,
			MaxFetchesPerWindow: 5,
			WindowMinutes:       60,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(ConfigDir(), "mailbuddy.log"),
		},
		Display: DisplayConfig{
			Theme: "default",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with MAILBUDDY_ override file values
// (e.g. MAILBUDDY_MAILBOX_ACCOUNT). If the file does not exist, defaults
// plus environment overrides are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILBUDDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// Registered so AutomaticEnv can see keys without a file default.
	for _, key := range []string{"mailbox.imap_host", "mailbox.account", "analysis.assistant_id", "log.file"} {
		v.SetDefault(key, "")
	}

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(ConfigDir(), "mailbuddy.log")
	}
	normalizeLimits(cfg)

	return cfg, nil
}

// normalizeLimits replaces non-positive limits with their defaults so a
// hand-edited file cannot disable the retry bound or the rate limit.
func normalizeLimits(cfg *AppConfig) {
	d := defaultAppConfig()
	if cfg.Analysis.MaxAttempts < 1 {
		cfg.Analysis.MaxAttempts = d.Analysis.MaxAttempts
	}
	if cfg.Analysis.PollIntervalMS <= 0 {
		cfg.Analysis.PollIntervalMS = d.Analysis.PollIntervalMS
	}
	if cfg.Analysis.RetryBackoffSec <= 0 {
		cfg.Analysis.RetryBackoffSec = d.Analysis.RetryBackoffSec
	}
	if cfg.Analysis.RequestTimeoutSec <= 0 {
		cfg.Analysis.RequestTimeoutSec = d.Analysis.RequestTimeoutSec
	}
	if cfg.Session.MaxMessagesPerFetch < 1 {
		cfg.Session.MaxMessagesPerFetch = d.Session.MaxMessagesPerFetch
	}
	if cfg.Session.MaxFetchesPerWindow < 1 {
		cfg.Session.MaxFetchesPerWindow = d.Session.MaxFetchesPerWindow
	}
	if cfg.Session.WindowMinutes < 1 {
		cfg.Session.WindowMinutes = d.Session.WindowMinutes
	}
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("mailbox", cfg.Mailbox)
	v.Set("analysis", cfg.Analysis)
	v.Set("session", cfg.Session)
	v.Set("log", cfg.Log)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
