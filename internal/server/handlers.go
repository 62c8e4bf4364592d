// ABOUTME: HTTP handlers and JSON shapes for the chat and admin endpoints.
// ABOUTME: Thin decode/call/encode wrappers over the service layer.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/2389/support-desk/internal/prompt"
	"github.com/2389/support-desk/internal/store"
)

// StartRequest is the JSON request body for POST /api/v1/chat/start.
type StartRequest struct {
	Email      string `json:"customer_email"`
	Name       string `json:"customer_name"`
	Department string `json:"department,omitempty"`
}

// StartResponse is the JSON response for POST /api/v1/chat/start.
type StartResponse struct {
	SessionID  string           `json:"session_id"`
	Status     string           `json:"status"`
	Department string           `json:"department"`
	Customer   CustomerResponse `json:"customer"`
	CreatedAt  string           `json:"created_at"`
}

// CustomerResponse is the customer fragment embedded in chat responses.
type CustomerResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// MessageRequest is the JSON request body for POST /api/v1/chat/message.
type MessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"content"`
}

// MessageResponse is the JSON response for POST /api/v1/chat/message.
type MessageResponse struct {
	SessionID        string   `json:"session_id"`
	Reply            string   `json:"reply"`
	Confidence       float64  `json:"confidence"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	Status           string   `json:"status"`
	Escalated        bool     `json:"escalated"`
}

// TranscriptMessage is a single message in a history response.
type TranscriptMessage struct {
	ID               string   `json:"id"`
	Seq              int64    `json:"seq"`
	Sender           string   `json:"sender"`
	Content          string   `json:"content"`
	Confidence       *float64 `json:"confidence,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	CreatedAt        string   `json:"created_at"`
}

// HistoryResponse is the JSON response for GET /api/v1/chat/history/{session_id}.
type HistoryResponse struct {
	SessionID string              `json:"session_id"`
	Messages  []TranscriptMessage `json:"messages"`
}

// SessionRequest is the JSON request body for resolve and reopen.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// EscalateRequest is the JSON request body for POST /api/v1/chat/escalate.
type EscalateRequest struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

// SessionStatusResponse is the JSON response for resolve and reopen.
type SessionStatusResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// ConversationResponse is one conversation in summary and admin listings.
type ConversationResponse struct {
	SessionID     string `json:"session_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	Department    string `json:"department"`
	Status        string `json:"status"`
	MessageCount  int    `json:"message_count"`
	LastMessage   string `json:"last_message,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// AnalyticsResponse is the JSON response for GET /api/v1/admin/analytics.
type AnalyticsResponse struct {
	Conversations       ConversationCounts     `json:"conversations"`
	Messages            MessageCounts          `json:"messages"`
	RecentConversations []ConversationResponse `json:"recent_conversations"`
}

// ConversationCounts breaks conversations down by status.
type ConversationCounts struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Escalated int `json:"escalated"`
	Resolved  int `json:"resolved"`
}

// MessageCounts breaks messages down by sender.
type MessageCounts struct {
	Total    int `json:"total"`
	AI       int `json:"ai"`
	Customer int `json:"customer"`
}

// PromptRequest is the JSON request body for creating or updating a prompt.
type PromptRequest struct {
	Name        string `json:"name"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
	Department  string `json:"department,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// PromptResponse is the JSON shape of a system prompt.
type PromptResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
	Department  string `json:"department"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ListPromptsResponse is the JSON response for GET /api/v1/admin/prompts.
type ListPromptsResponse struct {
	Prompts []PromptResponse `json:"prompts"`
}

// ListConversationsResponse is the JSON response for GET /api/v1/admin/conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// CustomerOverviewResponse is one customer in the admin customer listing.
type CustomerOverviewResponse struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	ConversationCount int    `json:"conversation_count"`
	CreatedAt         string `json:"created_at"`
}

// ListCustomersResponse is the JSON response for GET /api/v1/admin/customers.
type ListCustomersResponse struct {
	Customers []CustomerOverviewResponse `json:"customers"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, err := s.chat.Start(r.Context(), req.Email, req.Name, store.Department(req.Department))
	if err != nil {
		s.sendError(w, err)
		return
	}

	s.sendJSON(w, http.StatusCreated, StartResponse{
		SessionID:  sess.SessionID,
		Status:     string(sess.Status),
		Department: string(sess.Department),
		Customer: CustomerResponse{
			ID:    sess.Customer.ID,
			Email: sess.Customer.Email,
			Name:  sess.Customer.Name,
		},
		CreatedAt: sess.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.chat.PostMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.sendError(w, err)
		return
	}

	resp := MessageResponse{
		SessionID: result.SessionID,
		Reply:     result.Reply.Content,
		Status:    string(result.Status),
		Escalated: result.Escalated,
	}
	if result.Reply.Metadata != nil {
		resp.Confidence = result.Reply.Metadata.Confidence
		resp.SuggestedActions = result.Reply.Metadata.SuggestedActions
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	msgs, err := s.chat.History(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, err)
		return
	}

	resp := HistoryResponse{
		SessionID: sessionID,
		Messages:  make([]TranscriptMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		tm := TranscriptMessage{
			ID:        m.ID,
			Seq:       m.Seq,
			Sender:    m.Sender,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		}
		if m.Metadata != nil {
			confidence := m.Metadata.Confidence
			tm.Confidence = &confidence
			tm.SuggestedActions = m.Metadata.SuggestedActions
		}
		resp.Messages = append(resp.Messages, tm)
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	overview, err := s.chat.Summary(r.Context(), r.PathValue("session_id"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toConversationResponse(overview))
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req EscalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conv, err := s.chat.Escalate(r.Context(), req.SessionID, req.Reason)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, SessionStatusResponse{
		SessionID: conv.SessionID,
		Status:    string(conv.Status),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.chat.Resolve)
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.chat.Reopen)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, transition func(ctx context.Context, sessionID string) (*store.Conversation, error)) {
	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conv, err := transition(r.Context(), req.SessionID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, SessionStatusResponse{
		SessionID: conv.SessionID,
		Status:    string(conv.Status),
	})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.analytics.Summary(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}

	resp := AnalyticsResponse{
		Conversations: ConversationCounts{
			Total:     summary.Conversations.Total,
			Active:    summary.Conversations.Active,
			Escalated: summary.Conversations.Escalated,
			Resolved:  summary.Conversations.Resolved,
		},
		Messages: MessageCounts{
			Total:    summary.Messages.Total,
			AI:       summary.Messages.AI,
			Customer: summary.Messages.Customer,
		},
		RecentConversations: make([]ConversationResponse, 0, len(summary.RecentConversations)),
	}
	for _, o := range summary.RecentConversations {
		resp.RecentConversations = append(resp.RecentConversations, toConversationResponse(o))
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := pageParams(q)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	overviews, err := s.analytics.Conversations(r.Context(), store.Status(q.Get("status")), limit, offset)
	if err != nil {
		s.sendError(w, err)
		return
	}

	resp := ListConversationsResponse{Conversations: make([]ConversationResponse, 0, len(overviews))}
	for _, o := range overviews {
		resp.Conversations = append(resp.Conversations, toConversationResponse(o))
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r.URL.Query())
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	customers, err := s.analytics.Customers(r.Context(), limit, offset)
	if err != nil {
		s.sendError(w, err)
		return
	}

	resp := ListCustomersResponse{Customers: make([]CustomerOverviewResponse, 0, len(customers))}
	for _, c := range customers {
		resp.Customers = append(resp.Customers, CustomerOverviewResponse{
			ID:                c.ID,
			Email:             c.Email,
			Name:              c.Name,
			ConversationCount: c.ConversationCount,
			CreatedAt:         c.CreatedAt.Format(time.RFC3339),
		})
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// pageParams parses the limit and offset query parameters, rejecting
// non-integer values instead of silently falling back to defaults.
func pageParams(q url.Values) (limit, offset int, err error) {
	if limit, err = queryInt(q, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(q, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func queryInt(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.prompts.List(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}

	resp := ListPromptsResponse{Prompts: make([]PromptResponse, 0, len(prompts))}
	for _, p := range prompts {
		resp.Prompts = append(resp.Prompts, toPromptResponse(p))
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := s.prompts.Create(r.Context(), promptInput(req))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, toPromptResponse(p))
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := s.prompts.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"message": "prompt deleted"})
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := s.prompts.Update(r.Context(), r.PathValue("id"), promptInput(req))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toPromptResponse(p))
}

func promptInput(req PromptRequest) prompt.Input {
	return prompt.Input{
		Name:        req.Name,
		Content:     req.Content,
		Description: req.Description,
		Department:  store.Department(req.Department),
		IsActive:    req.IsActive,
	}
}

func toPromptResponse(p *store.SystemPrompt) PromptResponse {
	return PromptResponse{
		ID:          p.ID,
		Name:        p.Name,
		Content:     p.Content,
		Description: p.Description,
		Department:  string(p.Department),
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

func toConversationResponse(o *store.ConversationOverview) ConversationResponse {
	return ConversationResponse{
		SessionID:     o.SessionID,
		CustomerEmail: o.CustomerEmail,
		CustomerName:  o.CustomerName,
		Department:    string(o.Department),
		Status:        string(o.Status),
		MessageCount:  o.MessageCount,
		LastMessage:   o.LastMessage,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.Format(time.RFC3339),
	}
}
