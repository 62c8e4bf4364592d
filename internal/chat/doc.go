// ABOUTME: Package documentation for the conversation orchestrator.
// ABOUTME: Describes the lifecycle state machine, turn pipeline, and escalation policy.

// Package chat orchestrates customer support conversations.
//
// A conversation moves through a small lifecycle: it starts active, may be
// escalated to a human (by the escalation policy or by explicit request),
// and can be resolved from any state. Resolve is terminal only until an
// explicit Reopen moves the conversation back to active. Lifecycle
// transitions take the same per-session lock as turns, so a transition can
// never interleave with a turn that is mid-generation.
//
// PostMessage is the core operation. It serializes turns per session via a
// keyed lock, loads the transcript and the department's active system
// prompt, asks the response generator for a reply, applies the escalation
// policy (confidence below the threshold, or an explicit escalate action in
// the reply), and commits the customer message, the AI reply, and any
// status change in a single store transaction. Once validation has passed
// the pipeline runs on a detached timeout context, so a caller that
// disconnects mid-turn never leaves a customer message without its reply.
package chat
