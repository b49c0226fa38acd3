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

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// ServerConfig holds the inbound webhook listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// WhatsAppConfig holds the Cloud API settings. Tokens are secrets and are
// resolved through the credential package, not stored here.
type WhatsAppConfig struct {
	BaseURL          string `mapstructure:"base_url" yaml:"base_url"`
	PhoneNumberID    string `mapstructure:"phone_number_id" yaml:"phone_number_id"`
	VerifyToken      string `mapstructure:"verify_token" yaml:"verify_token"`
	ReminderTemplate string `mapstructure:"reminder_template" yaml:"reminder_template"`
	TemplateLanguage string `mapstructure:"template_language" yaml:"template_language"`
}

// ReminderConfig tunes the reminder lifecycle engine.
type ReminderConfig struct {
	MaxRetries       int           `mapstructure:"max_retries" yaml:"max_retries"`
	SessionWindow    time.Duration `mapstructure:"session_window" yaml:"session_window"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	GracePeriod      time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
	DefaultHour      int           `mapstructure:"default_hour" yaml:"default_hour"`
	DefaultMinute    int           `mapstructure:"default_minute" yaml:"default_minute"`
	TemplateTitleMax int           `mapstructure:"template_title_max" yaml:"template_title_max"`
}

// QueueConfig tunes the delayed job queue and its worker pool.
type QueueConfig struct {
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial" yaml:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
}

// InterpreterConfig tunes the message interpreter.
type InterpreterConfig struct {
	EscalationThreshold float64 `mapstructure:"escalation_threshold" yaml:"escalation_threshold"`
}

// LLMConfig selects the optional language-model backend used for
// low-confidence messages. An empty Provider disables escalation.
type LLMConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// DashboardConfig points chat replies at the web board.
type DashboardConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	WhatsApp    WhatsAppConfig    `mapstructure:"whatsapp" yaml:"whatsapp"`
	Reminders   ReminderConfig    `mapstructure:"reminders" yaml:"reminders"`
	Queue       QueueConfig       `mapstructure:"queue" yaml:"queue"`
	Interpreter InterpreterConfig `mapstructure:"interpreter" yaml:"interpreter"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
	Dashboard   DashboardConfig   `mapstructure:"dashboard" yaml:"dashboard"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/chattask/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "chattask")
}

// setDefaults registers every default on v so that missing keys and the
// no-file case resolve to the same values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", filepath.Join(configDir(), "chattask.db"))
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("whatsapp.base_url", "https://graph.facebook.com/v21.0")
	v.SetDefault("whatsapp.reminder_template", "task_reminder")
	v.SetDefault("whatsapp.template_language", "en")
	v.SetDefault("reminders.max_retries", 3)
	v.SetDefault("reminders.session_window", "24h")
	v.SetDefault("reminders.sweep_interval", "5m")
	v.SetDefault("reminders.grace_period", "5m")
	v.SetDefault("reminders.default_hour", 10)
	v.SetDefault("reminders.default_minute", 0)
	v.SetDefault("reminders.template_title_max", 60)
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.poll_interval", "1s")
	v.SetDefault("queue.max_attempts", 10)
	v.SetDefault("queue.backoff_initial", "5s")
	v.SetDefault("queue.backoff_max", "10m")
	v.SetDefault("interpreter.escalation_threshold", 0.6)
	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("dashboard.url", "https://app.example.com")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with CHATTASK_ override file values
// (database.dsn becomes CHATTASK_DATABASE_DSN). A missing file yields the
// defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("chattask")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *AppConfig) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Reminders.DefaultHour < 0 || c.Reminders.DefaultHour > 23 {
		return fmt.Errorf("reminders.default_hour out of range: %d", c.Reminders.DefaultHour)
	}
	if c.Reminders.DefaultMinute < 0 || c.Reminders.DefaultMinute > 59 {
		return fmt.Errorf("reminders.default_minute out of range: %d", c.Reminders.DefaultMinute)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("queue.concurrency must be positive, got %d", c.Queue.Concurrency)
	}
	switch c.LLM.Provider {
	case "", "anthropic", "gemini":
	default:
		return fmt.Errorf("llm.provider must be empty, anthropic or gemini, got %q", c.LLM.Provider)
	}
	return nil
}
