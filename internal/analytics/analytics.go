// ABOUTME: Read-side analytics over the transcript store.
// ABOUTME: Serves the admin summary and the filtered conversation listing.

package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/support-desk/internal/store"
)

// ErrInvalidFilter is returned for an unknown status filter.
var ErrInvalidFilter = errors.New("invalid filter")

const defaultRecentLimit = 10

// Service answers the admin dashboard's read queries. All aggregation runs
// inside the store's read transactions, so a summary is always a consistent
// snapshot.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// NewService creates the analytics reader.
func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "analytics"),
	}
}

// Summary returns conversation counts by status, message counts by sender,
// and the most recent conversations with their rollups.
func (s *Service) Summary(ctx context.Context) (*store.Summary, error) {
	summary, err := s.store.Summarize(ctx, defaultRecentLimit)
	if err != nil {
		return nil, fmt.Errorf("computing summary: %w", err)
	}
	return summary, nil
}

// Conversations lists conversations most-recent-first, optionally filtered
// by status. An unknown status filter returns an error rather than an
// empty listing.
func (s *Service) Conversations(ctx context.Context, status store.Status, limit, offset int) ([]*store.ConversationOverview, error) {
	if status != "" {
		switch status {
		case store.StatusActive, store.StatusEscalated, store.StatusResolved:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, status)
		}
	}
	return s.store.ListConversations(ctx, store.ListConversationsParams{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
}

// Customers lists customers most-recent-first with their conversation
// counts.
func (s *Service) Customers(ctx context.Context, limit, offset int) ([]*store.CustomerOverview, error) {
	return s.store.ListCustomers(ctx, limit, offset)
}
