// Package logport is a minimal chatport.Port that logs every event and
// auto-allows every permission request. The daemon binary in cmd/relayd
// uses it as the default adapter when no chat integration is configured
// (Discord/Slack/Telegram adapters are explicitly out of scope for this
// repository, spec.md §1/§9): it keeps `relayd serve` runnable end to end
// for local smoke-testing without a real chat platform.
package logport

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/sleepcode/relayd/internal/chatport"
)

// Port logs every chatport.Port event on the given logger.
type Port struct {
	log *slog.Logger
}

// New creates a Port that logs on log (or slog.Default() if nil).
func New(log *slog.Logger) *Port {
	if log == nil {
		log = slog.Default()
	}
	return &Port{log: log}
}

func (p *Port) SessionStart(sessionID string) {
	p.log.Info("session start", "session", sessionID)
}

func (p *Port) SessionEnd(sessionID string) {
	p.log.Info("session end", "session", sessionID)
}

func (p *Port) NameUpdate(sessionID, name string) {
	p.log.Info("name update", "session", sessionID, "name", name)
}

func (p *Port) StatusChange(sessionID, status string) {
	p.log.Info("status change", "session", sessionID, "status", status)
}

func (p *Port) TitleChange(sessionID, title string) {
	p.log.Info("title change", "session", sessionID, "title", title)
}

func (p *Port) Message(sessionID, role, text string) {
	p.log.Info("message", "session", sessionID, "role", role, "text", text)
}

func (p *Port) Todos(sessionID string, todos json.RawMessage) {
	p.log.Info("todos", "session", sessionID, "todos", string(todos))
}

func (p *Port) ToolCall(sessionID, callID, toolName string, input json.RawMessage) {
	p.log.Info("tool call", "session", sessionID, "callId", callID, "tool", toolName)
}

func (p *Port) ToolResult(sessionID, callID, text string, isError bool) {
	p.log.Info("tool result", "session", sessionID, "callId", callID, "isError", isError)
}

func (p *Port) PlanModeChange(sessionID string, active bool) {
	p.log.Info("plan mode change", "session", sessionID, "active", active)
}

// PermissionRequest always allows, since there is no user on the other end
// of this adapter to ask.
func (p *Port) PermissionRequest(ctx context.Context, sessionID, requestID, toolName string, input json.RawMessage) (chatport.Decision, error) {
	p.log.Info("permission request auto-allowed", "session", sessionID, "requestId", requestID, "tool", toolName)
	return chatport.Decision{Behavior: "allow"}, nil
}

// StructuredQuestion answers every question with an empty string, logging
// the prompts it could not actually ask anyone.
func (p *Port) StructuredQuestion(ctx context.Context, sessionID, requestID string, questions []chatport.Question) (map[string]any, error) {
	answers := make(map[string]any, len(questions))
	for _, q := range questions {
		p.log.Info("structured question auto-answered", "session", sessionID, "requestId", requestID, "prompt", q.Prompt)
		answers[q.ID] = ""
	}
	return answers, nil
}

func (p *Port) ThreadFor(sessionID string) (string, bool) {
	return "", false
}

func (p *Port) Revive(sessionID, threadID string) bool {
	return false
}

func (p *Port) Notify(sessionID, text string) {
	p.log.Info("notify", "session", sessionID, "text", text)
}
