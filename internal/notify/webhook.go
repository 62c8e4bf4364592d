// ABOUTME: Best-effort webhook notifications for escalated conversations.
// ABOUTME: Posts JSON asynchronously with a bounded timeout and small retry.

package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/2389/support-desk/internal/store"
)

// escalationPayload is the JSON body posted to the webhook.
type escalationPayload struct {
	Event       string `json:"event"`
	SessionID   string `json:"session_id"`
	Department  string `json:"department"`
	Reason      string `json:"reason"`
	EscalatedAt string `json:"escalated_at"`
}

// Webhook delivers escalation events to a configured HTTP endpoint so a
// human queue can pick them up. Delivery is asynchronous and best effort:
// a failed webhook never fails the turn that triggered it.
type Webhook struct {
	client *resty.Client
	url    string
	logger *slog.Logger
}

// NewWebhook creates a notifier posting to url. timeout bounds each
// delivery attempt.
func NewWebhook(url string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json")

	return &Webhook{
		client: client,
		url:    url,
		logger: logger.With("component", "notify"),
	}
}

// NotifyEscalation posts the event in the background. The caller's context
// only contributes values; cancellation of the originating request does not
// abort delivery.
func (w *Webhook) NotifyEscalation(ctx context.Context, sessionID string, department store.Department, reason string) {
	payload := escalationPayload{
		Event:       "conversation.escalated",
		SessionID:   sessionID,
		Department:  string(department),
		Reason:      reason,
		EscalatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	go w.deliver(context.WithoutCancel(ctx), payload)
}

func (w *Webhook) deliver(ctx context.Context, payload escalationPayload) {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(w.url)
	if err != nil {
		w.logger.Warn("escalation webhook delivery failed",
			"session_id", payload.SessionID,
			"error", err)
		return
	}
	if resp.IsError() {
		w.logger.Warn("escalation webhook rejected",
			"session_id", payload.SessionID,
			"status", resp.StatusCode())
		return
	}
	w.logger.Debug("escalation webhook delivered",
		"session_id", payload.SessionID,
		"status", resp.StatusCode())
}
