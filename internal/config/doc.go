// Package config handles configuration loading for support-desk.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	responder:
//	  api_key: "${SUPPORT_DESK_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	responder:
//	  timeout: "20s"
//	  retry_backoff: "1s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Chat and admin API
//
// Database:
//
//	database:
//	  path: "/var/lib/support-desk/support.db"
//
// Response generator:
//
//	responder:
//	  api_key: "${SUPPORT_DESK_API_KEY}"
//	  model: "gpt-4o-mini"
//	  timeout: "20s"
//	  retry_backoff: "1s"
//	  max_retries: 2
//
// Conversation policy. An omitted confidence_threshold means the default
// of 0.5; an explicit 0 disables confidence-based escalation.
//
//	chat:
//	  confidence_threshold: 0.5
//	  escalate_action: "escalate_to_human"
//	  turn_timeout: "60s"
//	  lock_wait: "10s"
//
// Escalation webhook:
//
//	webhook:
//	  enabled: false
//	  url: "https://hooks.example.com/escalations"
//	  timeout: "5s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: false
//	  path: "/metrics"
//
// # Validation
//
// Load() validates:
//
//   - Required server address, database path, and responder API key
//   - Confidence threshold range (0 to 1)
//   - Duration format validity
//   - Webhook and metrics settings when enabled
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/support-desk/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
