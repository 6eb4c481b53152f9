// Package chatport defines the upward contract between the Router and a
// chat adapter (Discord, Slack, Telegram, ...). spec.md §6's original
// "the Router is constructed with a set of callbacks" shape is a
// map-of-callbacks anti-pattern (REDESIGN FLAG, §9): it has no fixed
// signature an implementer can satisfy once, and it cannot be mocked with
// a single test double. This package replaces it with a single
// polymorphic interface, in the style of the teacher's narrow
// internal/interfaces port definitions (PermissionChecker, FileSystem),
// generalized from a single-method port to the full event/command
// surface spec.md §6 names.
package chatport

import (
	"context"
	"encoding/json"
)

// Decision is the adapter's answer to a permission request.
type Decision struct {
	Behavior     string          // "allow" | "deny"
	Message      string          // shown to the user on deny
	UpdatedInput json.RawMessage // tool input overridden by the user, if any
}

// Question is one element of a structured "ask-user" request.
type Question struct {
	ID          string
	Prompt      string
	MultiSelect bool
	Options     []string
}

// Port is the full upward contract: every event the Router can emit to a
// chat adapter. Implementations are expected to resolve thread/channel
// binding on their own (spec.md §4.5 "Fallback chat-thread resolution");
// the Router only calls these methods, it never inspects adapter state.
type Port interface {
	SessionStart(sessionID string)
	SessionEnd(sessionID string)
	NameUpdate(sessionID, name string)
	StatusChange(sessionID, status string)
	TitleChange(sessionID, title string)
	Message(sessionID, role, text string)
	Todos(sessionID string, todos json.RawMessage)
	ToolCall(sessionID, callID, toolName string, input json.RawMessage)
	ToolResult(sessionID, callID, text string, isError bool)
	PlanModeChange(sessionID string, active bool)

	// PermissionRequest returns the adapter's eventual decision. The
	// Router blocks the originating request's lifecycle on it, not the
	// whole daemon: callers run this in its own goroutine (spec.md §5).
	PermissionRequest(ctx context.Context, sessionID, requestID, toolName string, input json.RawMessage) (Decision, error)

	// StructuredQuestion is the ask-user specialization of
	// PermissionRequest (spec.md §4.5): the adapter may collect answers
	// across several user interactions before resolving.
	StructuredQuestion(ctx context.Context, sessionID, requestID string, questions []Question) (map[string]any, error)

	// ThreadFor resolves the current chat-thread binding for a session,
	// or ("", false) if none exists yet (e.g. after a restart before the
	// runner reattaches).
	ThreadFor(sessionID string) (threadID string, ok bool)

	// Revive un-archives a previously archived thread, used when a
	// persisted mapping exists but the adapter's live binding does not
	// (spec.md §4.5).
	Revive(sessionID, threadID string) (ok bool)

	// Notify posts a fire-and-forget informational message to a
	// session's thread (e.g. the YOLO auto-allow notice, or the
	// startup-reconciliation "session lost" notice, spec.md §4.2, §4.5).
	Notify(sessionID, text string)
}
