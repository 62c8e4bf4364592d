// ABOUTME: Entry point for the support-desk conversation server
// ABOUTME: Serves the customer chat API and the admin dashboard API

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/support-desk/internal/analytics"
	"github.com/2389/support-desk/internal/chat"
	"github.com/2389/support-desk/internal/config"
	"github.com/2389/support-desk/internal/metrics"
	"github.com/2389/support-desk/internal/notify"
	"github.com/2389/support-desk/internal/prompt"
	"github.com/2389/support-desk/internal/responder"
	"github.com/2389/support-desk/internal/server"
	"github.com/2389/support-desk/internal/sessionlock"
	"github.com/2389/support-desk/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                    _            _           _
 ___ _   _ _ __  _ __   ___  _ __| |_       __| | ___  ___| | __
/ __| | | | '_ \| '_ \ / _ \| '__| __|____ / _' |/ _ \/ __| |/ /
\__ \ |_| | |_) | |_) | (_) | |  | ||_____| (_| |  __/\__ \   <
|___/\__,_| .__/| .__/ \___/|_|   \__|     \__,_|\___||___/_|\_\
          |_|   |_|
`

// getConfigPath returns the path to the support-desk config file.
// Priority: SUPPORT_DESK_CONFIG env var > XDG_CONFIG_HOME/support-desk/config.yaml > ~/.config/support-desk/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SUPPORT_DESK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "support-desk", "config.yaml")
}

// getDataPath returns the path to the support-desk data directory.
// Priority: XDG_DATA_HOME/support-desk > ~/.local/share/support-desk
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "support-desk")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: support-desk <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the support-desk server")
		fmt.Println("  init     Create a new config file")
		fmt.Println("  health   Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	if cfg.Webhook.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Webhook:   %s\n", cfg.Webhook.URL)
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}

	fmt.Println()

	logger.Info("starting support-desk",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	srv, cleanup, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return srv.Run(ctx)
}

// buildServer wires the store, services, and HTTP server from config.
func buildServer(cfg *config.Config, logger *slog.Logger) (*server.Server, func(), error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	gen, err := responder.NewOpenAIGenerator(responder.Config{
		APIKey:       cfg.Responder.APIKey,
		BaseURL:      cfg.Responder.BaseURL,
		Model:        cfg.Responder.Model,
		Timeout:      cfg.Responder.Timeout,
		MaxRetries:   cfg.Responder.MaxRetries,
		RetryBackoff: cfg.Responder.RetryBackoff,
	}, logger)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("creating responder: %w", err)
	}

	locks := sessionlock.New(cfg.Chat.LockWait, 0)

	var notifier chat.Notifier
	if cfg.Webhook.Enabled {
		notifier = notify.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Timeout, logger)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	prompts := prompt.NewRegistry(st, logger)
	chatSvc := chat.NewService(st, prompts, gen, locks, notifier, m, chat.Options{
		ConfidenceThreshold: cfg.Chat.ConfidenceThreshold,
		EscalateAction:      cfg.Chat.EscalateAction,
		TurnTimeout:         cfg.Chat.TurnTimeout,
	}, logger)

	srv := server.New(server.Config{
		Addr:        cfg.Server.HTTPAddr,
		Chat:        chatSvc,
		Prompts:     prompts,
		Analytics:   analytics.NewService(st, logger),
		Metrics:     m,
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger,
	})

	cleanup := func() {
		locks.Close()
		if err := st.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}
	return srv, cleanup, nil
}

func runInit() error {
	configPath := getConfigPath()
	dataPath := getDataPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# support-desk configuration
# Generated by support-desk init

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

responder:
  api_key: "${SUPPORT_DESK_API_KEY}"
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
  enabled: false
  url: ""
  timeout: "5s"

logging:
  level: "info"
  format: "text"

metrics:
  enabled: false
  path: "/metrics"
`, filepath.Join(dataPath, "support.db"))

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Created config file: %s\n", configPath)
	fmt.Println()
	fmt.Println("Set SUPPORT_DESK_API_KEY and run: support-desk serve")
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, body)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
