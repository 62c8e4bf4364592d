// ABOUTME: Prompt registry managing department-scoped system prompts.
// ABOUTME: Validates input, assigns IDs, resolves the active prompt with a default fallback.

package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/support-desk/internal/responder"
	"github.com/2389/support-desk/internal/store"
)

// ErrInvalidInput is returned when a prompt fails validation.
var ErrInvalidInput = errors.New("invalid prompt input")

// Input carries the caller-supplied fields for creating or updating a prompt.
type Input struct {
	Name        string
	Content     string
	Description string
	Department  store.Department
	IsActive    bool
}

// Registry manages the lifecycle of system prompts. At most one prompt per
// department is active at a time; the store enforces that inside the
// activation transaction.
type Registry struct {
	store  store.Store
	logger *slog.Logger
}

// NewRegistry creates a prompt registry backed by the given store.
func NewRegistry(st store.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  st,
		logger: logger.With("component", "prompt"),
	}
}

// Create validates the input and persists a new prompt. If IsActive is set,
// any other active prompt in the same department is deactivated in the same
// transaction.
func (r *Registry) Create(ctx context.Context, in Input) (*store.SystemPrompt, error) {
	normalized, err := normalize(in)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &store.SystemPrompt{
		ID:          uuid.New().String(),
		Name:        normalized.Name,
		Content:     normalized.Content,
		Description: normalized.Description,
		Department:  normalized.Department,
		IsActive:    normalized.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.CreatePrompt(ctx, p); err != nil {
		return nil, fmt.Errorf("creating prompt: %w", err)
	}

	r.logger.Info("prompt created",
		"prompt_id", p.ID,
		"department", p.Department,
		"active", p.IsActive)
	return p, nil
}

// Update validates the input and replaces an existing prompt's fields.
// Returns store.ErrNotFound if the prompt does not exist.
func (r *Registry) Update(ctx context.Context, id string, in Input) (*store.SystemPrompt, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: prompt id is required", ErrInvalidInput)
	}
	normalized, err := normalize(in)
	if err != nil {
		return nil, err
	}

	existing, err := r.store.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = normalized.Name
	existing.Content = normalized.Content
	existing.Description = normalized.Description
	existing.Department = normalized.Department
	existing.IsActive = normalized.IsActive
	existing.UpdatedAt = time.Now().UTC()

	if err := r.store.UpdatePrompt(ctx, existing); err != nil {
		return nil, fmt.Errorf("updating prompt: %w", err)
	}

	r.logger.Info("prompt updated",
		"prompt_id", existing.ID,
		"department", existing.Department,
		"active", existing.IsActive)
	return existing, nil
}

// Delete removes a prompt. Returns store.ErrNotFound if it does not exist.
// Deleting the active prompt leaves its department on the built-in default.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: prompt id is required", ErrInvalidInput)
	}
	if err := r.store.DeletePrompt(ctx, id); err != nil {
		return err
	}
	r.logger.Info("prompt deleted", "prompt_id", id)
	return nil
}

// Get returns a single prompt by id.
func (r *Registry) Get(ctx context.Context, id string) (*store.SystemPrompt, error) {
	return r.store.GetPrompt(ctx, id)
}

// List returns all prompts, newest first.
func (r *Registry) List(ctx context.Context) ([]*store.SystemPrompt, error) {
	return r.store.ListPrompts(ctx)
}

// ActiveContent resolves the system prompt text for a department. When no
// prompt is active the built-in default is returned, so a conversation can
// always proceed.
func (r *Registry) ActiveContent(ctx context.Context, department store.Department) (string, error) {
	p, err := r.store.GetActivePrompt(ctx, department)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return responder.DefaultSystemPrompt, nil
		}
		return "", fmt.Errorf("resolving active prompt: %w", err)
	}
	return p.Content, nil
}

// normalize trims and validates input fields.
func normalize(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Content = strings.TrimSpace(in.Content)
	in.Description = strings.TrimSpace(in.Description)

	if in.Name == "" {
		return in, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Content == "" {
		return in, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if in.Department == "" {
		in.Department = store.DepartmentGeneral
	}
	if !store.ValidDepartment(in.Department) {
		return in, fmt.Errorf("%w: unknown department %q", ErrInvalidInput, in.Department)
	}
	return in, nil
}
