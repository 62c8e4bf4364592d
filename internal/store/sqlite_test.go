package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// createTestConversation seeds a customer and an active conversation,
// returning the session ID.
func createTestConversation(t *testing.T, s *SQLiteStore, email string, department Department) string {
	t.Helper()
	ctx := context.Background()

	customer, err := s.CreateCustomer(ctx, email, "Test Customer")
	require.NoError(t, err)

	sessionID := uuid.New().String()
	err = s.CreateConversation(ctx, &Conversation{
		SessionID:  sessionID,
		CustomerID: customer.ID,
		Department: department,
		Status:     StatusActive,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	})
	require.NoError(t, err)
	return sessionID
}

func TestStore_CreateCustomer(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	customer, err := store.CreateCustomer(ctx, "a@b.com", "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, customer.ID)
	assert.Equal(t, "a@b.com", customer.Email)
	assert.Equal(t, "Alice", customer.Name)
}

func TestStore_CreateCustomer_IdempotentByEmail(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, err := store.CreateCustomer(ctx, "a@b.com", "Alice")
	require.NoError(t, err)

	// Second create with the same email returns the existing customer,
	// original name included
	second, err := store.CreateCustomer(ctx, "a@b.com", "Someone Else")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Alice", second.Name)
}

func TestStore_GetCustomerByEmail_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetCustomerByEmail(context.Background(), "missing@b.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CreateConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sessionID := createTestConversation(t, store, "a@b.com", DepartmentBilling)

	conv, err := store.GetConversation(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, conv.SessionID)
	assert.Equal(t, DepartmentBilling, conv.Department)
	assert.Equal(t, StatusActive, conv.Status)
}

func TestStore_CreateConversation_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	customer, err := store.CreateCustomer(ctx, "a@b.com", "Alice")
	require.NoError(t, err)

	conv := &Conversation{
		SessionID:  "session-123",
		CustomerID: customer.ID,
		Department: DepartmentGeneral,
		Status:     StatusActive,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, store.CreateConversation(ctx, conv))

	err = store.CreateConversation(ctx, conv)
	assert.ErrorIs(t, err, ErrDuplicateConversation)
}

func TestStore_GetConversation_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetConversation(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetStatus(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sessionID := createTestConversation(t, store, "a@b.com", DepartmentGeneral)

	require.NoError(t, store.SetStatus(ctx, sessionID, StatusResolved))

	conv, err := store.GetConversation(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, conv.Status)
}

func TestStore_SetStatus_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.SetStatus(context.Background(), "nonexistent", StatusResolved)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AppendMessage_AssignsSequence(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sessionID := createTestConversation(t, store, "a@b.com", DepartmentGeneral)

	first := &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    SenderCustomer,
		Content:   "hello",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.AppendMessage(ctx, first))
	assert.Equal(t, int64(1), first.Seq)

	second := &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    SenderAI,
		Content:   "hi there",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.AppendMessage(ctx, second))
	assert.Equal(t, int64(2), second.Seq)
}

func TestStore_AppendMessage_UnknownSession(t *testing.T) {
	store := setupTestStore(t)

	err := store.AppendMessage(context.Background(), &Message{
		ID:        uuid.New().String(),
		SessionID: "nonexistent",
		Sender:    SenderCustomer,
		Content:   "hello",
		CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListMessages_OrderAndMetadata(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sessionID := createTestConversation(t, store, "a@b.com", DepartmentGeneral)

	customerMsg := &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    SenderCustomer,
		Content:   "refund please",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.AppendMessage(ctx, customerMsg))

	aiMsg := &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    SenderAI,
		Content:   "let me check",
		Metadata: &MessageMetadata{
			Confidence:       0.3,
			SuggestedActions: []string{"escalate_to_human"},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.AppendMessage(ctx, aiMsg))

	messages, err := store.ListMessages(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, SenderCustomer, messages[0].Sender)
	assert.Equal(t, "refund please", messages[0].Content)
	assert.Nil(t, messages[0].Metadata)

	assert.Equal(t, SenderAI, messages[1].Sender)
	require.NotNil(t, messages[1].Metadata)
	assert.InDelta(t, 0.3, messages[1].Metadata.Confidence, 0.0001)
	assert.Equal(t, []string{"escalate_to_human"}, messages[1].Metadata.SuggestedActions)
}

func TestStore_ListMessages_UnknownSession(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.ListMessages(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListMessages_EmptyTranscript(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sessionID := createTestConversation(t, store, "a@b.com", DepartmentGeneral)

	messages, err := store.ListMessages(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestStore_AppendTurn_Atomic(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sessionID := createTestConversation(t, store, "a@b.com", DepartmentGeneral)

	customerMsg := &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    SenderCustomer,
		Content:   "my invoice is wrong",
		CreatedAt: time.Now(),
	}
	aiMsg := &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    SenderAI,
		Content:   "let me escalate this",
		Metadata:  &MessageMetadata{Confidence: 0.2, SuggestedActions: []string{"escalate_to_human"}},
		CreatedAt: time.Now(),
	}

	err := store.AppendTurn(ctx, sessionID, customerMsg, aiMsg, StatusEscalated)
	require.NoError(t, err)

	messages, err := store.ListMessages(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, int64(1), messages[0].Seq)
	assert.Equal(t, int64(2), messages[1].Seq)

	conv, err := store.GetConversation(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, conv.Status)
}

func TestStore_AppendTurn_UnknownSessionWritesNothing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// A second, valid conversation proves no stray rows appear
	sessionID := createTestConversation(t, store, "a@b.com", DepartmentGeneral)

	err := store.AppendTurn(ctx, "nonexistent",
		&Message{ID: uuid.New().String(), SessionID: "nonexistent", Sender: SenderCustomer, Content: "x", CreatedAt: time.Now()},
		&Message{ID: uuid.New().String(), SessionID: "nonexistent", Sender: SenderAI, Content: "y", CreatedAt: time.Now()},
		StatusActive)
	assert.ErrorIs(t, err, ErrNotFound)

	messages, err := store.ListMessages(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestStore_EscalateConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sessionID := createTestConversation(t, store, "a@b.com", DepartmentGeneral)

	marker := &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    SenderSystem,
		Content:   "Conversation escalated to a human agent. Reason: angry customer",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.EscalateConversation(ctx, sessionID, marker))
	assert.Equal(t, int64(1), marker.Seq)

	conv, err := store.GetConversation(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, conv.Status)

	messages, err := store.ListMessages(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, SenderSystem, messages[0].Sender)
}

func TestStore_EscalateConversation_UnknownSession(t *testing.T) {
	store := setupTestStore(t)

	err := store.EscalateConversation(context.Background(), "nonexistent", &Message{
		ID:        uuid.New().String(),
		SessionID: "nonexistent",
		Sender:    SenderSystem,
		Content:   "marker",
		CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListCustomers(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestConversation(t, store, "a@b.com", DepartmentGeneral)
	createTestConversation(t, store, "a@b.com", DepartmentBilling)
	createTestConversation(t, store, "c@d.com", DepartmentGeneral)

	customers, err := store.ListCustomers(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, customers, 2)

	byEmail := map[string]int{}
	for _, c := range customers {
		byEmail[c.Email] = c.ConversationCount
	}
	assert.Equal(t, 2, byEmail["a@b.com"])
	assert.Equal(t, 1, byEmail["c@d.com"])
}

func TestStore_ListCustomers_Paging(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		createTestConversation(t, store, uuid.New().String()+"@b.com", DepartmentGeneral)
	}

	page, err := store.ListCustomers(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := store.ListCustomers(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}
