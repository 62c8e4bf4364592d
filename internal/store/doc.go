// Package store provides persistent storage for support-desk using SQLite.
//
// # Architecture
//
// The package exposes a single Store interface covering customers,
// conversations, messages, system prompts, and read-side aggregation.
// SQLiteStore implements the full interface in one struct backed by
// modernc.org/sqlite with WAL mode enabled; the schema is created at open.
//
// # Data Models
//
//   - Customer: identity keyed by email, immutable after creation
//   - Conversation: one support session with a lifecycle status
//     (active, escalated, resolved) and an append-only transcript
//   - Message: a transcript entry with a per-conversation monotonic
//     sequence number; AI messages carry confidence and suggested actions
//   - SystemPrompt: department-scoped responder instruction; at most one
//     active prompt per department
//
// # Consistency
//
// Two operations are deliberately transactional:
//
//   - AppendTurn writes the customer message, the AI reply, and the
//     resulting conversation status in one transaction, so a transcript
//     never shows a customer message without its reply.
//   - CreatePrompt/UpdatePrompt with the active flag set deactivate any
//     sibling prompt in the same department inside the same transaction,
//     so no query ever observes two active prompts for one department.
//
// Summarize and the conversation listings run inside read-only
// transactions so dashboards see a consistent snapshot.
package store
