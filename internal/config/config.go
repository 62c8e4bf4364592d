// ABOUTME: Configuration loading and parsing for support-desk
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete support-desk configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Responder ResponderConfig `yaml:"responder"`
	Chat      ChatConfig      `yaml:"chat"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ResponderConfig holds the chat-completion API client configuration
type ResponderConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	MaxRetries int    `yaml:"max_retries"`

	Timeout      time.Duration `yaml:"-"`
	RetryBackoff time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw      string `yaml:"timeout"`
	RetryBackoffRaw string `yaml:"retry_backoff"`
}

// ChatConfig holds the conversation orchestrator's policy configuration.
// ConfidenceThreshold is a pointer so that an explicit zero, which disables
// confidence-based escalation, is distinguishable from an omitted field.
type ChatConfig struct {
	ConfidenceThreshold *float64 `yaml:"confidence_threshold"`
	EscalateAction      string   `yaml:"escalate_action"`

	TurnTimeout time.Duration `yaml:"-"`
	LockWait    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TurnTimeoutRaw string `yaml:"turn_timeout"`
	LockWaitRaw    string `yaml:"lock_wait"`
}

// WebhookConfig holds the escalation webhook configuration
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`

	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Responder.APIKey == "" {
		return fmt.Errorf("responder.api_key is required")
	}

	if t := c.Chat.ConfidenceThreshold; t != nil && (*t < 0 || *t > 1) {
		return fmt.Errorf("chat.confidence_threshold must be between 0 and 1")
	}

	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required when webhook is enabled")
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics.path is required when metrics are enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Responder.TimeoutRaw != "" {
		cfg.Responder.Timeout, err = time.ParseDuration(cfg.Responder.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing responder.timeout %q: %w", cfg.Responder.TimeoutRaw, err)
		}
	}

	if cfg.Responder.RetryBackoffRaw != "" {
		cfg.Responder.RetryBackoff, err = time.ParseDuration(cfg.Responder.RetryBackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing responder.retry_backoff %q: %w", cfg.Responder.RetryBackoffRaw, err)
		}
	}

	if cfg.Chat.TurnTimeoutRaw != "" {
		cfg.Chat.TurnTimeout, err = time.ParseDuration(cfg.Chat.TurnTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing chat.turn_timeout %q: %w", cfg.Chat.TurnTimeoutRaw, err)
		}
	}

	if cfg.Chat.LockWaitRaw != "" {
		cfg.Chat.LockWait, err = time.ParseDuration(cfg.Chat.LockWaitRaw)
		if err != nil {
			return fmt.Errorf("parsing chat.lock_wait %q: %w", cfg.Chat.LockWaitRaw, err)
		}
	}

	if cfg.Webhook.TimeoutRaw != "" {
		cfg.Webhook.Timeout, err = time.ParseDuration(cfg.Webhook.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing webhook.timeout %q: %w", cfg.Webhook.TimeoutRaw, err)
		}
	}

	return nil
}
