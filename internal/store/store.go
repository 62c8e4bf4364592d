// ABOUTME: Store interface and data types for support-desk persistence
// ABOUTME: Defines Customer, Conversation, Message, SystemPrompt and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation
// whose session ID already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// Department identifies which support desk a conversation belongs to
type Department string

const (
	DepartmentGeneral   Department = "general"
	DepartmentBilling   Department = "billing"
	DepartmentTechnical Department = "technical"
)

// ValidDepartment reports whether d is a known department.
func ValidDepartment(d Department) bool {
	switch d {
	case DepartmentGeneral, DepartmentBilling, DepartmentTechnical:
		return true
	}
	return false
}

// Status is the lifecycle state of a conversation
type Status string

const (
	StatusActive    Status = "active"
	StatusEscalated Status = "escalated"
	StatusResolved  Status = "resolved"
)

// Sender constants for message authorship
const (
	SenderCustomer = "customer"
	SenderAI       = "ai"
	SenderSystem   = "system"
)

// Customer represents a person opening support conversations.
// Customers are keyed by email and immutable after creation.
type Customer struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// Conversation represents one support session between a customer and the
// AI responder. Its message sequence is append-only.
type Conversation struct {
	SessionID  string
	CustomerID string
	Department Department
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MessageMetadata carries the responder's self-assessment for AI messages.
type MessageMetadata struct {
	Confidence       float64
	SuggestedActions []string
}

// Message is a single transcript entry. Seq is monotonic within a
// conversation and defines transcript order. Messages are immutable.
type Message struct {
	ID        string
	SessionID string
	Seq       int64
	Sender    string
	Content   string
	Metadata  *MessageMetadata
	CreatedAt time.Time
}

// SystemPrompt is a department-scoped instruction for the responder.
// At most one prompt per department is active at any instant.
type SystemPrompt struct {
	ID          string
	Name        string
	Content     string
	Description string
	Department  Department
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConversationOverview is a conversation with its message rollup,
// used by admin listings and the analytics summary.
type ConversationOverview struct {
	SessionID     string
	CustomerEmail string
	CustomerName  string
	Department    Department
	Status        Status
	MessageCount  int
	LastMessage   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Summary is the aggregate rollup computed from a single consistent snapshot.
type Summary struct {
	Conversations       StatusCounts
	Messages            MessageCounts
	RecentConversations []*ConversationOverview
}

// StatusCounts breaks conversations down by lifecycle state.
type StatusCounts struct {
	Total     int
	Active    int
	Escalated int
	Resolved  int
}

// MessageCounts breaks messages down by sender.
type MessageCounts struct {
	Total    int
	AI       int
	Customer int
}

// CustomerOverview is a customer with their conversation count, used by the
// admin customer listing.
type CustomerOverview struct {
	Customer
	ConversationCount int
}

// ListConversationsParams filters and pages the admin conversation listing.
type ListConversationsParams struct {
	Status Status // empty matches all
	Limit  int
	Offset int
}

// Store defines the interface for transcript and prompt persistence
type Store interface {
	// Customers
	CreateCustomer(ctx context.Context, email, name string) (*Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	ListCustomers(ctx context.Context, limit, offset int) ([]*CustomerOverview, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, sessionID string) (*Conversation, error)
	SetStatus(ctx context.Context, sessionID string, status Status) error
	EscalateConversation(ctx context.Context, sessionID string, marker *Message) error
	ListConversations(ctx context.Context, params ListConversationsParams) ([]*ConversationOverview, error)
	ConversationSummary(ctx context.Context, sessionID string) (*ConversationOverview, error)

	// Messages
	AppendMessage(ctx context.Context, msg *Message) error
	AppendTurn(ctx context.Context, sessionID string, customerMsg, aiMsg *Message, status Status) error
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)

	// System prompts
	CreatePrompt(ctx context.Context, prompt *SystemPrompt) error
	UpdatePrompt(ctx context.Context, prompt *SystemPrompt) error
	DeletePrompt(ctx context.Context, id string) error
	GetPrompt(ctx context.Context, id string) (*SystemPrompt, error)
	GetActivePrompt(ctx context.Context, department Department) (*SystemPrompt, error)
	ListPrompts(ctx context.Context) ([]*SystemPrompt, error)

	// Analytics
	Summarize(ctx context.Context, recentLimit int) (*Summary, error)

	// Close releases any resources held by the store
	Close() error
}
