// ABOUTME: System prompt persistence with per-department activation
// ABOUTME: Activating a prompt atomically deactivates others in the same department

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreatePrompt inserts a new system prompt. If the prompt is active, any
// previously active prompt in the same department is deactivated in the
// same transaction.
func (s *SQLiteStore) CreatePrompt(ctx context.Context, prompt *SystemPrompt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if prompt.IsActive {
		if err := deactivateDepartmentTx(ctx, tx, prompt.Department, prompt.ID); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO system_prompts (id, name, content, description, department, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		prompt.ID,
		prompt.Name,
		prompt.Content,
		prompt.Description,
		string(prompt.Department),
		boolToInt(prompt.IsActive),
		prompt.CreatedAt.UTC().Format(time.RFC3339),
		prompt.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting prompt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing prompt: %w", err)
	}

	s.logger.Debug("created prompt", "id", prompt.ID, "department", prompt.Department, "active", prompt.IsActive)
	return nil
}

// UpdatePrompt rewrites an existing prompt's fields. Activation follows the
// same rule as CreatePrompt: deactivation of siblings happens atomically.
// Returns ErrNotFound if the prompt doesn't exist.
func (s *SQLiteStore) UpdatePrompt(ctx context.Context, prompt *SystemPrompt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if prompt.IsActive {
		if err := deactivateDepartmentTx(ctx, tx, prompt.Department, prompt.ID); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE system_prompts
		SET name = ?, content = ?, description = ?, department = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`,
		prompt.Name,
		prompt.Content,
		prompt.Description,
		string(prompt.Department),
		boolToInt(prompt.IsActive),
		prompt.UpdatedAt.UTC().Format(time.RFC3339),
		prompt.ID,
	)
	if err != nil {
		return fmt.Errorf("updating prompt: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing prompt update: %w", err)
	}

	s.logger.Debug("updated prompt", "id", prompt.ID, "active", prompt.IsActive)
	return nil
}

// DeletePrompt removes a prompt.
// Returns ErrNotFound if the prompt doesn't exist.
func (s *SQLiteStore) DeletePrompt(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM system_prompts WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("deleting prompt: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted prompt", "id", id)
	return nil
}

// deactivateDepartmentTx clears the active flag on every other prompt in the
// department. Run inside the caller's transaction so there is no window
// where two prompts are both active.
func deactivateDepartmentTx(ctx context.Context, tx *sql.Tx, department Department, exceptID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE system_prompts
		SET is_active = 0, updated_at = ?
		WHERE department = ? AND is_active = 1 AND id <> ?
	`, time.Now().UTC().Format(time.RFC3339), string(department), exceptID)
	if err != nil {
		return fmt.Errorf("deactivating department prompts: %w", err)
	}
	return nil
}

// GetPrompt retrieves a prompt by ID.
// Returns ErrNotFound if the prompt doesn't exist.
func (s *SQLiteStore) GetPrompt(ctx context.Context, id string) (*SystemPrompt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, content, description, department, is_active, created_at, updated_at
		FROM system_prompts
		WHERE id = ?
	`, id)
	return scanPrompt(row.Scan)
}

// GetActivePrompt retrieves the active prompt for a department.
// Returns ErrNotFound if the department has no active prompt.
func (s *SQLiteStore) GetActivePrompt(ctx context.Context, department Department) (*SystemPrompt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, content, description, department, is_active, created_at, updated_at
		FROM system_prompts
		WHERE department = ? AND is_active = 1
		ORDER BY updated_at DESC
		LIMIT 1
	`, string(department))
	return scanPrompt(row.Scan)
}

// ListPrompts returns all prompts, most recently created first.
func (s *SQLiteStore) ListPrompts(ctx context.Context) ([]*SystemPrompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, content, description, department, is_active, created_at, updated_at
		FROM system_prompts
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying prompts: %w", err)
	}
	defer rows.Close()

	prompts := make([]*SystemPrompt, 0)
	for rows.Next() {
		prompt, err := scanPrompt(rows.Scan)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, prompt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prompt rows: %w", err)
	}
	return prompts, nil
}

func scanPrompt(scan func(dest ...any) error) (*SystemPrompt, error) {
	var prompt SystemPrompt
	var department string
	var isActive int
	var createdAtStr, updatedAtStr string

	err := scan(&prompt.ID, &prompt.Name, &prompt.Content, &prompt.Description,
		&department, &isActive, &createdAtStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning prompt: %w", err)
	}

	prompt.Department = Department(department)
	prompt.IsActive = isActive != 0

	prompt.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	prompt.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &prompt, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
