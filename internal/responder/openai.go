// ABOUTME: OpenAI-backed Generator with per-attempt timeouts and bounded retry
// ABOUTME: Transient failures degrade to a synthetic escalation reply, never an error

package responder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// defaultConfidence is attached to replies whose metadata envelope could
// not be parsed from the completion text.
const defaultConfidence = 0.85

// defaultModel is used when config does not name one.
const defaultModel = "gpt-4o-mini"

// metadataInstruction asks the model to wrap its answer in a JSON envelope
// so confidence and suggested actions can be extracted.
const metadataInstruction = `

Respond with a single JSON object and nothing else:
{"reply": "<your answer to the customer>", "confidence": <0.0-1.0 how confident you are this answer resolves the inquiry>, "suggested_actions": ["<action tags such as billing_inquiry, subscription_change, escalate_to_human>"]}
Include "escalate_to_human" in suggested_actions whenever the inquiry needs a human agent.`

// Config holds settings for the OpenAI generator.
type Config struct {
	APIKey       string
	BaseURL      string // optional override for compatible providers
	Model        string
	Timeout      time.Duration // per-attempt request timeout
	MaxRetries   int           // retries after the first attempt
	RetryBackoff time.Duration // base backoff between attempts
}

// OpenAIGenerator implements Generator against the OpenAI chat completion API.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

// NewOpenAIGenerator creates a generator from config. Zero-value timing
// fields fall back to sensible defaults.
func NewOpenAIGenerator(cfg Config, logger *slog.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("responder api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: timeout,
		retries: retries,
		backoff: backoff,
		logger:  logger.With("component", "responder"),
	}, nil
}

// Generate calls the completion API with the system prompt, the transcript
// so far, and the new customer message. Transient failures are retried with
// backoff; once retries are exhausted a degraded reply is returned instead
// of an error. Only InvalidRequest is surfaced as an error.
func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt string, history []HistoryMessage, customerText string) (*Reply, error) {
	messages := buildMessages(systemPrompt, history, customerText)

	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			wait := g.backoff * time.Duration(attempt)
			if errors.Is(lastErr, ErrRateLimited) {
				wait *= 2
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				g.logger.Warn("generate cancelled during backoff", "attempt", attempt)
				return DegradedReply(), nil
			}
		}

		reply, err := g.generateOnce(ctx, messages)
		if err == nil {
			return reply, nil
		}
		if errors.Is(err, ErrInvalidRequest) {
			return nil, err
		}

		lastErr = err
		g.logger.Warn("generate attempt failed",
			"attempt", attempt+1,
			"retryable", true,
			"error", err)
	}

	g.logger.Error("generate failed after retries, degrading", "error", lastErr)
	return DegradedReply(), nil
}

func (g *OpenAIGenerator) generateOnce(ctx context.Context, messages []openai.ChatCompletionMessage) (*Reply, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(attemptCtx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion returned no choices", ErrUnavailable)
	}

	return parseReply(resp.Choices[0].Message.Content), nil
}

// buildMessages maps the transcript into chat roles, with the system prompt
// and metadata envelope instruction first.
func buildMessages(systemPrompt string, history []HistoryMessage, customerText string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt + metadataInstruction,
	})

	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Sender == "ai" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: customerText,
	})
	return messages
}

// classifyError maps provider errors onto the retryability taxonomy.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		case apiErr.HTTPStatusCode == http.StatusUnauthorized,
			apiErr.HTTPStatusCode == http.StatusForbidden,
			apiErr.HTTPStatusCode == http.StatusBadRequest,
			apiErr.HTTPStatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 &&
			reqErr.HTTPStatusCode != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	// Network errors, timeouts, connection resets
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// replyEnvelope is the JSON shape the model is asked to produce.
type replyEnvelope struct {
	Reply            string   `json:"reply"`
	Confidence       float64  `json:"confidence"`
	SuggestedActions []string `json:"suggested_actions"`
}

// parseReply extracts the metadata envelope from the completion text.
// Models don't always comply, so a non-JSON completion is treated as the
// reply itself with a default confidence.
func parseReply(content string) *Reply {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var env replyEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err == nil && env.Reply != "" {
		return &Reply{
			Text:             env.Reply,
			Confidence:       clampConfidence(env.Confidence),
			SuggestedActions: env.SuggestedActions,
		}
	}

	return &Reply{
		Text:       content,
		Confidence: defaultConfidence,
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Ensure OpenAIGenerator implements Generator
var _ Generator = (*OpenAIGenerator)(nil)
