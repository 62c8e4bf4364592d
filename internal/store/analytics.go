// ABOUTME: Read-side aggregation queries over conversations and messages
// ABOUTME: All rollups run inside one read transaction for a consistent snapshot

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Summarize computes the dashboard rollup: conversation counts by status,
// message counts by sender, and the most recent conversations with their
// message counts. All reads happen in a single read-only transaction so
// the summary never observes a partially committed turn.
func (s *SQLiteStore) Summarize(ctx context.Context, recentLimit int) (*Summary, error) {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	if recentLimit > 100 {
		recentLimit = 100
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}
	defer tx.Rollback()

	summary := &Summary{}

	rows, err := tx.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM conversations GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		summary.Conversations.Total += count
		switch Status(status) {
		case StatusActive:
			summary.Conversations.Active = count
		case StatusEscalated:
			summary.Conversations.Escalated = count
		case StatusResolved:
			summary.Conversations.Resolved = count
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `
		SELECT sender, COUNT(*) FROM messages GROUP BY sender
	`)
	if err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}
	for rows.Next() {
		var sender string
		var count int
		if err := rows.Scan(&sender, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning sender count: %w", err)
		}
		summary.Messages.Total += count
		switch sender {
		case SenderAI:
			summary.Messages.AI = count
		case SenderCustomer:
			summary.Messages.Customer = count
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating sender counts: %w", err)
	}
	rows.Close()

	recent, err := listOverviewsTx(ctx, tx, `
		SELECT c.session_id, cu.email, cu.name, c.department, c.status,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = c.session_id),
		       COALESCE((SELECT m.content FROM messages m WHERE m.session_id = c.session_id ORDER BY m.seq DESC LIMIT 1), ''),
		       c.created_at, c.updated_at
		FROM conversations c
		JOIN customers cu ON cu.id = c.customer_id
		ORDER BY c.created_at DESC, c.session_id
		LIMIT ?
	`, recentLimit)
	if err != nil {
		return nil, err
	}
	summary.RecentConversations = recent

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing read transaction: %w", err)
	}

	return summary, nil
}

// ListConversations returns conversation overviews for the admin dashboard,
// most recent first, optionally filtered by status.
func (s *SQLiteStore) ListConversations(ctx context.Context, params ListConversationsParams) ([]*ConversationOverview, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT c.session_id, cu.email, cu.name, c.department, c.status,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = c.session_id),
		       COALESCE((SELECT m.content FROM messages m WHERE m.session_id = c.session_id ORDER BY m.seq DESC LIMIT 1), ''),
		       c.created_at, c.updated_at
		FROM conversations c
		JOIN customers cu ON cu.id = c.customer_id
	`
	args := []any{}
	if params.Status != "" {
		query += ` WHERE c.status = ?`
		args = append(args, string(params.Status))
	}
	query += ` ORDER BY c.created_at DESC, c.session_id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	overviews, err := listOverviewsTx(ctx, tx, query, args...)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing read transaction: %w", err)
	}
	return overviews, nil
}

// ConversationSummary returns the overview for a single conversation.
// Returns ErrNotFound if the session is unknown.
func (s *SQLiteStore) ConversationSummary(ctx context.Context, sessionID string) (*ConversationOverview, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}
	defer tx.Rollback()

	overviews, err := listOverviewsTx(ctx, tx, `
		SELECT c.session_id, cu.email, cu.name, c.department, c.status,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = c.session_id),
		       COALESCE((SELECT m.content FROM messages m WHERE m.session_id = c.session_id ORDER BY m.seq DESC LIMIT 1), ''),
		       c.created_at, c.updated_at
		FROM conversations c
		JOIN customers cu ON cu.id = c.customer_id
		WHERE c.session_id = ?
	`, sessionID)
	if err != nil {
		return nil, err
	}
	if len(overviews) == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing read transaction: %w", err)
	}
	return overviews[0], nil
}

func listOverviewsTx(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]*ConversationOverview, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversation overviews: %w", err)
	}
	defer rows.Close()

	overviews := make([]*ConversationOverview, 0)
	for rows.Next() {
		var ov ConversationOverview
		var department, status string
		var createdAtStr, updatedAtStr string

		if err := rows.Scan(&ov.SessionID, &ov.CustomerEmail, &ov.CustomerName,
			&department, &status, &ov.MessageCount, &ov.LastMessage,
			&createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning overview row: %w", err)
		}

		ov.Department = Department(department)
		ov.Status = Status(status)

		ov.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		ov.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}

		overviews = append(overviews, &ov)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overview rows: %w", err)
	}
	return overviews, nil
}
