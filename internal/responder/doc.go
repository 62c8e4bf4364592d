// Package responder adapts a hosted chat-completion API into the Generator
// interface the conversation orchestrator consumes.
//
// The adapter owns its own per-attempt timeout and bounded retry with
// backoff. Failures are classified into three categories: Unavailable
// (provider outage or network failure, retryable), RateLimited (retryable
// with a longer backoff), and InvalidRequest (fatal, surfaced to the
// caller). Once retries are exhausted on a retryable failure the adapter
// returns a synthetic degraded reply carrying confidence 0 and an
// escalate_to_human suggested action, so the orchestration layer always
// has a turn to persist.
//
// Replies are requested as a small JSON envelope (reply text, confidence,
// suggested action tags). Models don't always comply, so parsing is
// lenient: a plain-text completion becomes the reply with a default
// confidence and no actions.
package responder
