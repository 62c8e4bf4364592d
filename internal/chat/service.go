// ABOUTME: Conversation orchestrator driving the session lifecycle and AI turns.
// ABOUTME: Serializes turns per session and applies the escalation policy.

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/support-desk/internal/metrics"
	"github.com/2389/support-desk/internal/responder"
	"github.com/2389/support-desk/internal/sessionlock"
	"github.com/2389/support-desk/internal/store"
)

var (
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidState is returned when an operation is not allowed in the
	// conversation's current lifecycle state.
	ErrInvalidState = errors.New("invalid conversation state")
	// ErrConflict is returned when a concurrent turn on the same session is
	// already in flight and the lock wait window elapsed.
	ErrConflict = errors.New("conversation is busy")
)

// PromptSource resolves the system prompt text for a department.
type PromptSource interface {
	ActiveContent(ctx context.Context, department store.Department) (string, error)
}

// Notifier is told when a conversation escalates so a human queue can pick
// it up. Implementations must not block the turn.
type Notifier interface {
	NotifyEscalation(ctx context.Context, sessionID string, department store.Department, reason string)
}

// Options tunes the orchestrator's escalation policy and timing.
type Options struct {
	// ConfidenceThreshold escalates any reply whose confidence is below it.
	// Nil means the default of 0.5; an explicit zero disables
	// confidence-based escalation.
	ConfidenceThreshold *float64
	// EscalateAction is the suggested-action tag that forces escalation.
	EscalateAction string
	// TurnTimeout bounds the detached turn pipeline once validation passed.
	TurnTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.ConfidenceThreshold == nil {
		v := 0.5
		o.ConfidenceThreshold = &v
	}
	if o.EscalateAction == "" {
		o.EscalateAction = responder.ActionEscalate
	}
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = 60 * time.Second
	}
}

// Service orchestrates conversations: session lifecycle, message turns,
// escalation, and transcript access.
type Service struct {
	store     store.Store
	prompts   PromptSource
	generator responder.Generator
	locks     *sessionlock.Registry
	notifier  Notifier
	metrics   *metrics.Metrics
	opts      Options
	logger    *slog.Logger
}

// NewService wires the orchestrator. notifier and m may be nil.
func NewService(st store.Store, prompts PromptSource, gen responder.Generator, locks *sessionlock.Registry, notifier Notifier, m *metrics.Metrics, opts Options, logger *slog.Logger) *Service {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		prompts:   prompts,
		generator: gen,
		locks:     locks,
		notifier:  notifier,
		metrics:   m,
		opts:      opts,
		logger:    logger.With("component", "chat"),
	}
}

// Session is what Start returns to the caller.
type Session struct {
	SessionID  string
	Customer   *store.Customer
	Department store.Department
	Status     store.Status
	CreatedAt  time.Time
}

// Start creates (or reuses) the customer by email and opens a new active
// conversation. An omitted department defaults to general.
func (s *Service) Start(ctx context.Context, email, name string, department store.Department) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if department == "" {
		department = store.DepartmentGeneral
	}
	if !store.ValidDepartment(department) {
		return nil, fmt.Errorf("%w: unknown department %q", ErrInvalidInput, department)
	}

	customer, err := s.store.CreateCustomer(ctx, email, name)
	if err != nil {
		return nil, fmt.Errorf("creating customer: %w", err)
	}

	now := time.Now().UTC()
	conv := &store.Conversation{
		SessionID:  uuid.New().String(),
		CustomerID: customer.ID,
		Department: department,
		Status:     store.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Info("conversation started",
		"session_id", conv.SessionID,
		"department", conv.Department,
		"customer_id", customer.ID)

	return &Session{
		SessionID:  conv.SessionID,
		Customer:   customer,
		Department: conv.Department,
		Status:     conv.Status,
		CreatedAt:  conv.CreatedAt,
	}, nil
}

// TurnResult is the outcome of one customer message turn: the two messages
// appended and the conversation's resulting state.
type TurnResult struct {
	SessionID       string
	CustomerMessage *store.Message
	Reply           *store.Message
	Status          store.Status
	Escalated       bool
}

// PostMessage runs one customer turn: append the customer message, generate
// the AI reply, apply the escalation policy, and commit all of it
// atomically. Turns on the same session are serialized; once validation has
// passed the pipeline runs on a detached timeout context so an abandoned
// request cannot strand a half-written turn.
func (s *Service) PostMessage(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := s.store.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if conv.Status == store.StatusResolved {
		return nil, fmt.Errorf("%w: conversation is resolved", ErrInvalidState)
	}

	// The customer has committed their message; finish the turn even if
	// they hang up.
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.TurnTimeout)
	defer cancel()

	return s.runTurn(turnCtx, conv, text)
}

func (s *Service) runTurn(ctx context.Context, conv *store.Conversation, text string) (*TurnResult, error) {
	transcript, err := s.store.ListMessages(ctx, conv.SessionID)
	if err != nil {
		return nil, fmt.Errorf("loading transcript: %w", err)
	}

	history := make([]responder.HistoryMessage, 0, len(transcript))
	for _, m := range transcript {
		history = append(history, responder.HistoryMessage{Sender: m.Sender, Content: m.Content})
	}

	systemPrompt, err := s.prompts.ActiveContent(ctx, conv.Department)
	if err != nil {
		s.logger.Warn("active prompt lookup failed, using default",
			"session_id", conv.SessionID, "error", err)
		systemPrompt = responder.DefaultSystemPrompt
	}

	started := time.Now()
	reply, err := s.generator.Generate(ctx, systemPrompt, history, text)
	if err != nil {
		return nil, fmt.Errorf("generating reply: %w", err)
	}
	s.metrics.ObserveGenerator(time.Since(started), reply.Degraded)

	escalated := conv.Status == store.StatusActive && s.shouldEscalate(reply)
	status := conv.Status
	if escalated {
		status = store.StatusEscalated
	}

	now := time.Now().UTC()
	customerMsg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: conv.SessionID,
		Sender:    store.SenderCustomer,
		Content:   text,
		CreatedAt: now,
	}
	aiMsg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: conv.SessionID,
		Sender:    store.SenderAI,
		Content:   reply.Text,
		Metadata: &store.MessageMetadata{
			Confidence:       reply.Confidence,
			SuggestedActions: reply.SuggestedActions,
		},
		CreatedAt: now,
	}

	if err := s.store.AppendTurn(ctx, conv.SessionID, customerMsg, aiMsg, status); err != nil {
		return nil, fmt.Errorf("persisting turn: %w", err)
	}

	s.metrics.ObserveTurn(string(status))
	if escalated {
		s.metrics.ObserveEscalation()
		s.logger.Info("conversation escalated",
			"session_id", conv.SessionID,
			"confidence", reply.Confidence,
			"degraded", reply.Degraded)
		if s.notifier != nil {
			s.notifier.NotifyEscalation(ctx, conv.SessionID, conv.Department, escalationReason(reply, s.opts))
		}
	}

	return &TurnResult{
		SessionID:       conv.SessionID,
		CustomerMessage: customerMsg,
		Reply:           aiMsg,
		Status:          status,
		Escalated:       escalated,
	}, nil
}

// acquire takes the per-session lock that serializes every status-changing
// operation on a conversation, turns and lifecycle transitions alike.
func (s *Service) acquire(ctx context.Context, sessionID string) (func(), error) {
	release, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionlock.ErrBusy) {
			return nil, fmt.Errorf("%w: another operation on this session is in progress", ErrConflict)
		}
		return nil, err
	}
	return release, nil
}

func (s *Service) shouldEscalate(reply *responder.Reply) bool {
	if reply.Confidence < *s.opts.ConfidenceThreshold {
		return true
	}
	for _, action := range reply.SuggestedActions {
		if action == s.opts.EscalateAction {
			return true
		}
	}
	return false
}

func escalationReason(reply *responder.Reply, opts Options) string {
	if reply.Degraded {
		return "assistant unavailable"
	}
	if reply.Confidence < *opts.ConfidenceThreshold {
		return fmt.Sprintf("low confidence (%.2f)", reply.Confidence)
	}
	return "assistant requested human handoff"
}

// History returns the full ordered transcript for a session.
func (s *Service) History(ctx context.Context, sessionID string) ([]*store.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	return s.store.ListMessages(ctx, sessionID)
}

// Summary returns the per-conversation rollup for a session.
func (s *Service) Summary(ctx context.Context, sessionID string) (*store.ConversationOverview, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	return s.store.ConversationSummary(ctx, sessionID)
}

// Escalate hands a conversation to a human on explicit request, recording a
// marker message in the transcript. Valid from active or escalated state;
// escalating an already escalated conversation appends another marker
// without re-notifying.
func (s *Service) Escalate(ctx context.Context, sessionID, reason string) (*store.Conversation, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "customer requested a human agent"
	}

	release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := s.store.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if conv.Status == store.StatusResolved {
		return nil, fmt.Errorf("%w: conversation is resolved", ErrInvalidState)
	}

	marker := &store.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    store.SenderSystem,
		Content:   fmt.Sprintf("Conversation escalated to a human agent. Reason: %s", reason),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.EscalateConversation(ctx, sessionID, marker); err != nil {
		return nil, fmt.Errorf("escalating conversation: %w", err)
	}

	if conv.Status == store.StatusActive {
		s.metrics.ObserveEscalation()
		if s.notifier != nil {
			s.notifier.NotifyEscalation(ctx, sessionID, conv.Department, reason)
		}
	}
	conv.Status = store.StatusEscalated

	s.logger.Info("conversation escalated on request",
		"session_id", sessionID,
		"reason", reason)
	return conv, nil
}

// Resolve closes a conversation. Valid from any state; resolving an already
// resolved conversation is a no-op.
func (s *Service) Resolve(ctx context.Context, sessionID string) (*store.Conversation, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}

	release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := s.store.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if conv.Status != store.StatusResolved {
		if err := s.store.SetStatus(ctx, sessionID, store.StatusResolved); err != nil {
			return nil, fmt.Errorf("resolving conversation: %w", err)
		}
		conv.Status = store.StatusResolved
		s.logger.Info("conversation resolved", "session_id", sessionID)
	}
	return conv, nil
}

// Reopen moves a resolved conversation back to active.
func (s *Service) Reopen(ctx context.Context, sessionID string) (*store.Conversation, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}

	release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := s.store.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if conv.Status != store.StatusResolved {
		return nil, fmt.Errorf("%w: only resolved conversations can be reopened", ErrInvalidState)
	}
	if err := s.store.SetStatus(ctx, sessionID, store.StatusActive); err != nil {
		return nil, fmt.Errorf("reopening conversation: %w", err)
	}
	conv.Status = store.StatusActive
	s.logger.Info("conversation reopened", "session_id", sessionID)
	return conv, nil
}
