// ABOUTME: Generator interface and reply types for the AI responder
// ABOUTME: Classifies provider failures into retryable and fatal categories

package responder

import (
	"context"
	"errors"
)

// ActionEscalate is the suggested-action tag that requests human handling.
const ActionEscalate = "escalate_to_human"

// DefaultSystemPrompt conditions the responder when a department has no
// active prompt configured.
const DefaultSystemPrompt = `You are a helpful customer support AI assistant. Provide a helpful, empathetic response. Be professional and offer to help with the customer's inquiry. If the issue is complex or you are unsure, suggest escalating to a human agent.`

// Provider failure classification. Unavailable and RateLimited are
// retryable; InvalidRequest is fatal and surfaced to the caller.
var (
	ErrUnavailable    = errors.New("responder unavailable")
	ErrRateLimited    = errors.New("responder rate limited")
	ErrInvalidRequest = errors.New("invalid responder request")
)

// HistoryMessage is one prior transcript entry handed to the generator.
type HistoryMessage struct {
	Sender  string // "customer" or "ai"
	Content string
}

// Reply is the generator's answer to one customer message.
type Reply struct {
	Text             string
	Confidence       float64
	SuggestedActions []string
	// Degraded is set when the reply is the synthetic fallback produced
	// after retries were exhausted, rather than a genuine model answer.
	Degraded bool
}

// Generator produces a model-backed reply for a customer message given the
// active system prompt and the conversation so far.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []HistoryMessage, customerText string) (*Reply, error)
}

// DegradedReply builds the synthetic fallback used when the provider cannot
// be reached. The orchestration layer is never left without a turn to persist.
func DegradedReply() *Reply {
	return &Reply{
		Text:             "I'm sorry, I'm unable to process your request right now. Let me connect you with a human agent.",
		Confidence:       0,
		SuggestedActions: []string{ActionEscalate},
		Degraded:         true,
	}
}
