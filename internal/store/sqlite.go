// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides customer/conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS customers (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_customers_email ON customers(email);

		CREATE TABLE IF NOT EXISTS conversations (
			session_id  TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL REFERENCES customers(id),
			department  TEXT NOT NULL,
			status      TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,

			CHECK (department IN ('general', 'billing', 'technical')),
			CHECK (status IN ('active', 'escalated', 'resolved'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_customer ON conversations(customer_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status);
		CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id                TEXT PRIMARY KEY,
			session_id        TEXT NOT NULL REFERENCES conversations(session_id),
			seq               INTEGER NOT NULL,
			sender            TEXT NOT NULL,
			content           TEXT NOT NULL,
			confidence        REAL,
			suggested_actions TEXT,
			created_at        TEXT NOT NULL,

			UNIQUE(session_id, seq),
			CHECK (sender IN ('customer', 'ai', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, seq);

		CREATE TABLE IF NOT EXISTS system_prompts (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			content     TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			department  TEXT NOT NULL,
			is_active   INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,

			CHECK (department IN ('general', 'billing', 'technical'))
		);

		CREATE INDEX IF NOT EXISTS idx_prompts_department ON system_prompts(department);
		CREATE INDEX IF NOT EXISTS idx_prompts_active ON system_prompts(department, is_active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateCustomer creates a customer keyed by email, or returns the existing
// one if the email is already known. The operation is idempotent.
func (s *SQLiteStore) CreateCustomer(ctx context.Context, email, name string) (*Customer, error) {
	existing, err := s.GetCustomerByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	customer := &Customer{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO customers (id, email, name, created_at)
		VALUES (?, ?, ?, ?)
	`, customer.ID, customer.Email, customer.Name, customer.CreatedAt.Format(time.RFC3339))
	if err != nil {
		// Another request may have created the customer between our
		// lookup and insert attempt
		if isConstraintViolation(err) {
			return s.GetCustomerByEmail(ctx, email)
		}
		return nil, fmt.Errorf("inserting customer: %w", err)
	}

	s.logger.Debug("created customer", "id", customer.ID, "email", email)
	return customer, nil
}

// GetCustomerByEmail retrieves a customer by email.
// Returns ErrNotFound if no customer exists for the email.
func (s *SQLiteStore) GetCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	var customer Customer
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, created_at
		FROM customers
		WHERE email = ?
	`, email).Scan(&customer.ID, &customer.Email, &customer.Name, &createdAtStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying customer: %w", err)
	}

	customer.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &customer, nil
}

// ListCustomers returns customers most-recent-first with their conversation
// counts, for the admin listing.
func (s *SQLiteStore) ListCustomers(ctx context.Context, limit, offset int) ([]*CustomerOverview, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cu.id, cu.email, cu.name, cu.created_at,
		       (SELECT COUNT(*) FROM conversations c WHERE c.customer_id = cu.id)
		FROM customers cu
		ORDER BY cu.created_at DESC, cu.id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying customers: %w", err)
	}
	defer rows.Close()

	customers := make([]*CustomerOverview, 0)
	for rows.Next() {
		var ov CustomerOverview
		var createdAtStr string
		if err := rows.Scan(&ov.ID, &ov.Email, &ov.Name, &createdAtStr, &ov.ConversationCount); err != nil {
			return nil, fmt.Errorf("scanning customer row: %w", err)
		}
		ov.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		customers = append(customers, &ov)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating customer rows: %w", err)
	}
	return customers, nil
}

// CreateConversation creates a new conversation.
// Returns ErrDuplicateConversation if the session ID already exists.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (session_id, customer_id, department, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		conv.SessionID,
		conv.CustomerID,
		string(conv.Department),
		string(conv.Status),
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "session_id", conv.SessionID, "department", conv.Department)
	return nil
}

// GetConversation retrieves a conversation by session ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, customer_id, department, status, created_at, updated_at
		FROM conversations
		WHERE session_id = ?
	`, sessionID)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var conv Conversation
	var department, status string
	var createdAtStr, updatedAtStr string

	err := row.Scan(&conv.SessionID, &conv.CustomerID, &department, &status, &createdAtStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.Department = Department(department)
	conv.Status = Status(status)

	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &conv, nil
}

// SetStatus updates a conversation's lifecycle state.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) SetStatus(ctx context.Context, sessionID string, status Status) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = ?, updated_at = ? WHERE session_id = ?
	`, string(status), time.Now().UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated conversation status", "session_id", sessionID, "status", status)
	return nil
}

// EscalateConversation moves a conversation to escalated and appends the
// marker message in the same transaction. Returns ErrNotFound if the
// session is unknown.
func (s *SQLiteStore) EscalateConversation(ctx context.Context, sessionID string, marker *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.appendMessageTx(ctx, tx, marker); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET status = ?, updated_at = ? WHERE session_id = ?
	`, string(StatusEscalated), time.Now().UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing escalation: %w", err)
	}

	s.logger.Debug("escalated conversation", "session_id", sessionID, "marker_seq", marker.Seq)
	return nil
}

// AppendMessage appends a single message to a conversation's transcript.
// The message's Seq is assigned from the conversation's current tail.
// Returns ErrNotFound if the session is unknown.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.appendMessageTx(ctx, tx, msg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("appended message", "id", msg.ID, "session_id", msg.SessionID, "seq", msg.Seq)
	return nil
}

// AppendTurn persists one complete turn atomically: the customer message,
// the AI reply, and the resulting conversation status. Either all three
// become visible or none do.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, customerMsg, aiMsg *Message, status Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.appendMessageTx(ctx, tx, customerMsg); err != nil {
		return err
	}
	if err := s.appendMessageTx(ctx, tx, aiMsg); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE conversations SET status = ?, updated_at = ? WHERE session_id = ?
	`, string(status), time.Now().UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}

	s.logger.Debug("appended turn",
		"session_id", sessionID,
		"customer_seq", customerMsg.Seq,
		"ai_seq", aiMsg.Seq,
		"status", status)
	return nil
}

// appendMessageTx inserts a message within an existing transaction,
// assigning the next sequence number for the conversation.
func (s *SQLiteStore) appendMessageTx(ctx context.Context, tx *sql.Tx, msg *Message) error {
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE session_id = ?`, msg.SessionID).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking conversation: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`, msg.SessionID).Scan(&msg.Seq)
	if err != nil {
		return fmt.Errorf("assigning sequence: %w", err)
	}

	var confidence any
	var actions any
	if msg.Metadata != nil {
		confidence = msg.Metadata.Confidence
		data, err := json.Marshal(msg.Metadata.SuggestedActions)
		if err != nil {
			return fmt.Errorf("encoding suggested actions: %w", err)
		}
		actions = string(data)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, seq, sender, content, confidence, suggested_actions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.SessionID,
		msg.Seq,
		msg.Sender,
		msg.Content,
		confidence,
		actions,
		msg.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ListMessages retrieves a conversation's full transcript in order.
// Returns ErrNotFound if the session is unknown.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	if _, err := s.GetConversation(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, seq, sender, content, confidence, suggested_actions, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

func scanMessage(rows *sql.Rows) (*Message, error) {
	var msg Message
	var createdAtStr string
	var confidence sql.NullFloat64
	var actionsJSON sql.NullString

	if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &msg.Sender, &msg.Content,
		&confidence, &actionsJSON, &createdAtStr); err != nil {
		return nil, fmt.Errorf("scanning message row: %w", err)
	}

	var err error
	msg.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing message created_at: %w", err)
	}

	if confidence.Valid {
		meta := &MessageMetadata{Confidence: confidence.Float64}
		if actionsJSON.Valid && actionsJSON.String != "" {
			if err := json.Unmarshal([]byte(actionsJSON.String), &meta.SuggestedActions); err != nil {
				return nil, fmt.Errorf("decoding suggested actions: %w", err)
			}
		}
		msg.Metadata = meta
	}

	return &msg, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
