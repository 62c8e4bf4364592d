// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 {
	return &v
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

responder:
  api_key: "sk-test"
  model: "gpt-4o-mini"
  timeout: "20s"
  retry_backoff: "1s"
  max_retries: 2

chat:
  confidence_threshold: 0.5
  escalate_action: "escalate_to_human"
  turn_timeout: "60s"
  lock_wait: "10s"

webhook:
  enabled: true
  url: "https://hooks.example.com/escalations"
  timeout: "5s"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("expected http_addr 0.0.0.0:8080, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("expected database path ./test.db, got %s", cfg.Database.Path)
	}
	if cfg.Responder.APIKey != "sk-test" {
		t.Errorf("expected api key sk-test, got %s", cfg.Responder.APIKey)
	}
	if cfg.Responder.Timeout != 20*time.Second {
		t.Errorf("expected responder timeout 20s, got %v", cfg.Responder.Timeout)
	}
	if cfg.Responder.RetryBackoff != time.Second {
		t.Errorf("expected retry backoff 1s, got %v", cfg.Responder.RetryBackoff)
	}
	if cfg.Responder.MaxRetries != 2 {
		t.Errorf("expected max retries 2, got %d", cfg.Responder.MaxRetries)
	}
	if cfg.Chat.ConfidenceThreshold == nil || *cfg.Chat.ConfidenceThreshold != 0.5 {
		t.Errorf("expected confidence threshold 0.5, got %v", cfg.Chat.ConfidenceThreshold)
	}
	if cfg.Chat.EscalateAction != "escalate_to_human" {
		t.Errorf("expected escalate action escalate_to_human, got %s", cfg.Chat.EscalateAction)
	}
	if cfg.Chat.TurnTimeout != 60*time.Second {
		t.Errorf("expected turn timeout 60s, got %v", cfg.Chat.TurnTimeout)
	}
	if cfg.Chat.LockWait != 10*time.Second {
		t.Errorf("expected lock wait 10s, got %v", cfg.Chat.LockWait)
	}
	if !cfg.Webhook.Enabled {
		t.Error("expected webhook to be enabled")
	}
	if cfg.Webhook.Timeout != 5*time.Second {
		t.Errorf("expected webhook timeout 5s, got %v", cfg.Webhook.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics to be enabled")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("expected metrics path /metrics, got %s", cfg.Metrics.Path)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("SUPPORT_DESK_API_KEY", "sk-from-env")

	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
responder:
  api_key: "${SUPPORT_DESK_API_KEY}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Responder.APIKey != "sk-from-env" {
		t.Errorf("expected api key from env, got %s", cfg.Responder.APIKey)
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
responder:
  api_key: "${DEFINITELY_NOT_SET_VAR}"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for empty api key")
	}
	if !strings.Contains(err.Error(), "responder.api_key") {
		t.Errorf("expected api key error, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "server: [not: valid: yaml")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
responder:
  api_key: "sk-test"
  timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "responder.timeout") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing http addr",
			cfg:     Config{},
			wantErr: "server.http_addr",
		},
		{
			name: "missing database path",
			cfg: Config{
				Server: ServerConfig{HTTPAddr: ":8080"},
			},
			wantErr: "database.path",
		},
		{
			name: "missing api key",
			cfg: Config{
				Server:   ServerConfig{HTTPAddr: ":8080"},
				Database: DatabaseConfig{Path: "./x.db"},
			},
			wantErr: "responder.api_key",
		},
		{
			name: "threshold out of range",
			cfg: Config{
				Server:    ServerConfig{HTTPAddr: ":8080"},
				Database:  DatabaseConfig{Path: "./x.db"},
				Responder: ResponderConfig{APIKey: "sk-test"},
				Chat:      ChatConfig{ConfidenceThreshold: floatPtr(1.5)},
			},
			wantErr: "confidence_threshold",
		},
		{
			name: "webhook enabled without url",
			cfg: Config{
				Server:    ServerConfig{HTTPAddr: ":8080"},
				Database:  DatabaseConfig{Path: "./x.db"},
				Responder: ResponderConfig{APIKey: "sk-test"},
				Webhook:   WebhookConfig{Enabled: true},
			},
			wantErr: "webhook.url",
		},
		{
			name: "metrics enabled without path",
			cfg: Config{
				Server:    ServerConfig{HTTPAddr: ":8080"},
				Database:  DatabaseConfig{Path: "./x.db"},
				Responder: ResponderConfig{APIKey: "sk-test"},
				Metrics:   MetricsConfig{Enabled: true},
			},
			wantErr: "metrics.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_ConfidenceThresholdZeroIsKept(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"

database:
  path: "./test.db"

responder:
  api_key: "sk-test"

chat:
  confidence_threshold: 0
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chat.ConfidenceThreshold == nil {
		t.Fatal("expected explicit zero threshold to be set")
	}
	if *cfg.Chat.ConfidenceThreshold != 0 {
		t.Errorf("expected threshold 0, got %v", *cfg.Chat.ConfidenceThreshold)
	}
}

func TestLoad_ConfidenceThresholdOmittedIsNil(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"

database:
  path: "./test.db"

responder:
  api_key: "sk-test"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chat.ConfidenceThreshold != nil {
		t.Errorf("expected omitted threshold to stay nil, got %v", *cfg.Chat.ConfidenceThreshold)
	}
}

func TestValidate_MinimalValid(t *testing.T) {
	cfg := Config{
		Server:    ServerConfig{HTTPAddr: ":8080"},
		Database:  DatabaseConfig{Path: "./x.db"},
		Responder: ResponderConfig{APIKey: "sk-test"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected minimal config to validate, got: %v", err)
	}
}
