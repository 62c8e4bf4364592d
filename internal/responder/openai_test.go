package responder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestGenerator points the OpenAI client at a local test server.
func newTestGenerator(t *testing.T, handler http.HandlerFunc, retries int) *OpenAIGenerator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gen, err := NewOpenAIGenerator(Config{
		APIKey:       "test-key",
		BaseURL:      srv.URL + "/v1",
		Model:        "test-model",
		Timeout:      5 * time.Second,
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return gen
}

func completionResponse(content string) []byte {
	resp := map[string]any{
		"id":     "cmpl-test",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
	data, _ := json.Marshal(resp)
	return data
}

func apiErrorResponse(status int, message string) (int, []byte) {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "test_error",
		},
	})
	return status, body
}

func TestNewOpenAIGenerator_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIGenerator(Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestGenerate_ParsesEnvelope(t *testing.T) {
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionResponse(`{"reply": "I can help with that refund.", "confidence": 0.9, "suggested_actions": ["billing_inquiry"]}`))
	}, 0)

	reply, err := gen.Generate(context.Background(), DefaultSystemPrompt, nil, "refund please")
	require.NoError(t, err)
	assert.Equal(t, "I can help with that refund.", reply.Text)
	assert.InDelta(t, 0.9, reply.Confidence, 0.0001)
	assert.Equal(t, []string{"billing_inquiry"}, reply.SuggestedActions)
	assert.False(t, reply.Degraded)
}

func TestGenerate_SendsTranscript(t *testing.T) {
	var captured openai.ChatCompletionRequest
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionResponse("ok"))
	}, 0)

	history := []HistoryMessage{
		{Sender: "customer", Content: "hello"},
		{Sender: "ai", Content: "hi, how can I help?"},
	}
	_, err := gen.Generate(context.Background(), "Be terse.", history, "my invoice is wrong")
	require.NoError(t, err)

	require.Len(t, captured.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[0].Content, "Be terse.")
	assert.Equal(t, openai.ChatMessageRoleUser, captured.Messages[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, captured.Messages[2].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, captured.Messages[3].Role)
	assert.Equal(t, "my invoice is wrong", captured.Messages[3].Content)
}

func TestGenerate_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			status, body := apiErrorResponse(http.StatusInternalServerError, "boom")
			w.WriteHeader(status)
			w.Write(body)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionResponse("recovered"))
	}, 2)

	reply, err := gen.Generate(context.Background(), DefaultSystemPrompt, nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerate_DegradesAfterRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		status, body := apiErrorResponse(http.StatusServiceUnavailable, "outage")
		w.WriteHeader(status)
		w.Write(body)
	}, 2)

	reply, err := gen.Generate(context.Background(), DefaultSystemPrompt, nil, "hello")
	require.NoError(t, err, "transient exhaustion must degrade, not error")
	assert.True(t, reply.Degraded)
	assert.Equal(t, float64(0), reply.Confidence)
	assert.Contains(t, reply.SuggestedActions, ActionEscalate)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerate_RateLimitedDegrades(t *testing.T) {
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		status, body := apiErrorResponse(http.StatusTooManyRequests, "slow down")
		w.WriteHeader(status)
		w.Write(body)
	}, 1)

	reply, err := gen.Generate(context.Background(), DefaultSystemPrompt, nil, "hello")
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
}

func TestGenerate_InvalidRequestIsFatal(t *testing.T) {
	var calls atomic.Int32
	gen := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		status, body := apiErrorResponse(http.StatusBadRequest, "bad model")
		w.WriteHeader(status)
		w.Write(body)
	}, 3)

	_, err := gen.Generate(context.Background(), DefaultSystemPrompt, nil, "hello")
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, int32(1), calls.Load(), "fatal errors must not be retried")
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name           string
		content        string
		wantText       string
		wantConfidence float64
		wantActions    []string
	}{
		{
			name:           "clean envelope",
			content:        `{"reply": "sure", "confidence": 0.7, "suggested_actions": ["escalate_to_human"]}`,
			wantText:       "sure",
			wantConfidence: 0.7,
			wantActions:    []string{"escalate_to_human"},
		},
		{
			name:           "fenced envelope",
			content:        "```json\n{\"reply\": \"sure\", \"confidence\": 0.7, \"suggested_actions\": []}\n```",
			wantText:       "sure",
			wantConfidence: 0.7,
			wantActions:    []string{},
		},
		{
			name:           "plain text fallback",
			content:        "Happy to help with your subscription.",
			wantText:       "Happy to help with your subscription.",
			wantConfidence: defaultConfidence,
		},
		{
			name:           "confidence clamped high",
			content:        `{"reply": "sure", "confidence": 3.0}`,
			wantText:       "sure",
			wantConfidence: 1,
		},
		{
			name:           "confidence clamped low",
			content:        `{"reply": "sure", "confidence": -0.4}`,
			wantText:       "sure",
			wantConfidence: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := parseReply(tt.content)
			assert.Equal(t, tt.wantText, reply.Text)
			assert.InDelta(t, tt.wantConfidence, reply.Confidence, 0.0001)
			assert.Equal(t, tt.wantActions, reply.SuggestedActions)
		})
	}
}

func TestClassifyError_Statuses(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrUnavailable},
		{http.StatusBadGateway, ErrUnavailable},
		{http.StatusUnauthorized, ErrInvalidRequest},
		{http.StatusBadRequest, ErrInvalidRequest},
	}

	for _, tt := range tests {
		err := classifyError(&openai.APIError{HTTPStatusCode: tt.status})
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}
}
