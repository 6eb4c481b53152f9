// Package router is the Router component (SPEC_FULL.md §4.5): the
// central fusion point that merges Tailer and RPC Hub events into a
// single ordered per-session stream, deduplicates across sources,
// arbitrates permission flow, and exposes the upward event interface to
// chat adapters.
//
// The pending-permission table follows the map+mutex shape of the
// teacher's internal/agent/permissions.go PermissionEngine, generalized
// from persisted allow/deny rules to in-flight request bookkeeping (a
// pending permission here lives only for the request's lifetime, per
// spec.md §3, rather than being saved to disk). Structured ask-user
// requests use the askUserTool name Claude's own tool surface exposes
// ("AskUserQuestion").
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sleepcode/relayd/internal/auditlog"
	"github.com/sleepcode/relayd/internal/chatport"
	"github.com/sleepcode/relayd/internal/dedupe"
	"github.com/sleepcode/relayd/internal/eventlog"
	"github.com/sleepcode/relayd/internal/registry"
	"github.com/sleepcode/relayd/internal/rpchub"
	"github.com/sleepcode/relayd/internal/tailer"
)

// askUserTool is the tool name that identifies a structured "ask-user"
// permission request (spec.md §4.5).
const askUserTool = "AskUserQuestion"

// messageDedupCap bounds the per-session composite-key dedup set
// (same cap as the Tailer's line-hash set, spec.md §3/§4.5).
const messageDedupCap = 10000

// InputSender delivers text to a runner and permission decisions back to
// it. Implemented by *rpchub.Hub.
type InputSender interface {
	SendInput(sessionID, text string) error
	SendPermissionResponse(sessionID, requestID string, decision rpchub.Decision) error
}

type pendingPermission struct {
	sessionID string
	toolName  string
}

// Router fuses Tailer and Hub events for every session it is tracking.
type Router struct {
	reg     *registry.Registry
	hub     InputSender
	port    chatport.Port
	mapping *MappingStore
	audit   *auditlog.Log
	log     *slog.Logger

	mu          sync.Mutex
	messageSeen map[string]*dedupe.LRUSet // sessionID -> composite-key dedup set
	yolo        map[string]bool
	pending     map[string]pendingPermission // requestID -> pending permission

	questions *PendingQuestionAggregator
}

// New creates a Router. hub may be nil in tests that never call
// SendInput/SendPermissionResponse.
func New(reg *registry.Registry, hub InputSender, port chatport.Port, mapping *MappingStore, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		reg:         reg,
		hub:         hub,
		port:        port,
		mapping:     mapping,
		log:         log,
		messageSeen: make(map[string]*dedupe.LRUSet),
		yolo:        make(map[string]bool),
		pending:     make(map[string]pendingPermission),
		questions:   NewPendingQuestionAggregator(),
	}
}

// SetHub wires the hub after construction, for callers that must build
// the Router before the Hub exists (the Hub's Sink is this Router).
func (r *Router) SetHub(hub InputSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hub = hub
}

// SetAuditLog wires the audit trail after construction. A nil audit log
// (the default) leaves every audit call a no-op, so callers that don't
// care about the audit trail (most tests) never need to set one.
func (r *Router) SetAuditLog(audit *auditlog.Log) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = audit
}

func (r *Router) auditEvent(sessionID, event string, detail *string) {
	r.mu.Lock()
	audit := r.audit
	r.mu.Unlock()
	if audit == nil {
		return
	}
	if err := audit.AppendSessionEvent(sessionID, event, detail); err != nil {
		r.log.Warn("router: audit session event failed", "session", sessionID, "event", event, "err", err)
	}
}

func (r *Router) auditDecision(sessionID, requestID, toolName, behavior, message string, yolo bool) {
	r.mu.Lock()
	audit := r.audit
	r.mu.Unlock()
	if audit == nil {
		return
	}
	var msgPtr *string
	if message != "" {
		msgPtr = &message
	}
	if err := audit.RecordDecision(sessionID, requestID, toolName, behavior, msgPtr, yolo); err != nil {
		r.log.Warn("router: audit decision failed", "session", sessionID, "requestId", requestID, "err", err)
	}
}

func (r *Router) dedupSetFor(sessionID string) *dedupe.LRUSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.messageSeen[sessionID]
	if !ok {
		set = dedupe.NewLRUSet(messageDedupCap)
		r.messageSeen[sessionID] = set
	}
	return set
}

// admitMessage applies the cross-source first-arrival-wins rule
// (spec.md §4.5). Returns true if this is the first arrival and the
// message should be emitted.
func (r *Router) admitMessage(sessionID, text string) bool {
	key := eventlog.MessageTextHashKey(sessionID, text)
	return r.dedupSetFor(sessionID).Insert(key)
}

// SetYolo toggles a session's auto-allow flag (spec.md §6).
func (r *Router) SetYolo(sessionID string, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.yolo[sessionID] = on
}

func (r *Router) isYolo(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.yolo[sessionID]
}

// --- tailer.Sink ---

// TailerEvent dispatches one normalized Tailer event upward, applying
// cross-source dedup to message events.
func (r *Router) TailerEvent(ev tailer.Event) {
	switch ev.Kind {
	case tailer.EventNameUpdate:
		r.notifyPort(func() { r.port.NameUpdate(ev.SessionID, ev.Name) })
	case tailer.EventTodos:
		r.notifyPort(func() { r.port.Todos(ev.SessionID, ev.Todos) })
	case tailer.EventPlanModeChange:
		r.notifyPort(func() { r.port.PlanModeChange(ev.SessionID, ev.PlanMode) })
	case tailer.EventToolCall:
		r.notifyPort(func() { r.port.ToolCall(ev.SessionID, ev.ToolCallID, ev.ToolName, ev.ToolInput) })
	case tailer.EventToolResult:
		r.notifyPort(func() { r.port.ToolResult(ev.SessionID, ev.ToolCallID, ev.ToolResultText, ev.ToolIsError) })
	case tailer.EventStatusChange:
		r.setStatus(ev.SessionID, ev.Status)
	case tailer.EventMessage:
		if r.admitMessage(ev.SessionID, ev.Text) {
			r.notifyPort(func() { r.port.Message(ev.SessionID, ev.Role, ev.Text) })
		}
	}
}

func (r *Router) setStatus(sessionID, status string) {
	var s registry.Status
	switch status {
	case "running":
		s = registry.StatusRunning
	case "idle":
		s = registry.StatusIdle
	default:
		return
	}
	if err := r.reg.SetStatus(sessionID, s); err != nil {
		r.log.Warn("router: set-status failed", "session", sessionID, "err", err)
	}
	r.auditEvent(sessionID, status, nil)
	r.notifyPort(func() { r.port.StatusChange(sessionID, status) })
}

// --- rpchub.Sink ---

// SessionStart records a new session and notifies the adapter
// (spec.md §4.4, §4.5).
func (r *Router) SessionStart(s rpchub.SessionStart) {
	if r.reg.IsReconciling(s.ID) {
		// Stray late connection for a session already being finalized by
		// startup reconciliation; ignore (spec.md §4.2).
		return
	}

	sess := registry.Session{
		ID:         s.ID,
		Cwd:        s.Cwd,
		ProjectDir: s.ProjectDir,
		ChildPID:   s.PID,
		Command:    s.Command,
		Name:       s.Name,
		Status:     registry.StatusRunning,
		StartedAt:  time.Now(),
	}
	if sess.Name == "" && len(s.Command) > 0 {
		sess.Name = s.Command[0]
	}
	if err := r.reg.Upsert(sess); err != nil {
		r.log.Warn("router: registry upsert failed", "session", s.ID, "err", err)
	}
	r.auditEvent(s.ID, "session_start", nil)

	existing, hadMapping := r.mapping.Get(s.ID)
	threadID, boundOK := r.port.ThreadFor(s.ID)
	if hadMapping && !boundOK && r.port.Revive(s.ID, existing.ThreadID) {
		threadID, boundOK = existing.ThreadID, true
	}
	if boundOK {
		r.persistThreadBinding(s.ID, threadID, existing.ChannelID, s.Cwd)
	}

	r.notifyPort(func() { r.port.SessionStart(s.ID) })
}

// persistThreadBinding writes a newly-learned or revived chat-thread
// binding to both the Registry (spec.md §4.2's orphan/reconcile checks
// key off Session.ThreadID) and the MappingStore (spec.md §3's
// restart-survival copy), so a later daemon restart can reattach to the
// same thread instead of starting a fresh one.
func (r *Router) persistThreadBinding(sessionID, threadID, channelID, cwd string) {
	if err := r.reg.SetThread(sessionID, threadID, channelID); err != nil {
		r.log.Warn("router: set-thread failed", "session", sessionID, "err", err)
	}
	m := ThreadMapping{SessionID: sessionID, ThreadID: threadID, ChannelID: channelID, Cwd: cwd}
	if err := r.mapping.Set(m); err != nil {
		r.log.Warn("router: mapping set failed", "session", sessionID, "err", err)
	}
}

// SessionEnd tears down per-session state and notifies the adapter
// exactly once (spec.md §7: "Runner disconnects always produce a
// session-end exactly once").
func (r *Router) SessionEnd(sessionID string) {
	r.mu.Lock()
	delete(r.messageSeen, sessionID)
	delete(r.yolo, sessionID)
	for id, p := range r.pending {
		if p.sessionID == sessionID {
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()
	r.questions.CancelSession(sessionID)

	if err := r.reg.SetStatus(sessionID, registry.StatusStopping); err != nil {
		r.log.Warn("router: set-status(stopping) failed", "session", sessionID, "err", err)
	}
	if err := r.reg.SetStatus(sessionID, registry.StatusStopped); err != nil {
		r.log.Warn("router: set-status(stopped) failed", "session", sessionID, "err", err)
	}
	r.auditEvent(sessionID, "session_end", nil)

	r.notifyPort(func() { r.port.SessionEnd(sessionID) })
}

// TitleUpdate forwards a runner-observed window-title change.
func (r *Router) TitleUpdate(t rpchub.TitleUpdate) {
	r.notifyPort(func() { r.port.TitleChange(t.SessionID, t.Title) })
}

// PTYOutput is the fallback-delivery path: cleaned assistant text
// observed on the PTY stream, subject to the same cross-source dedup as
// Tailer messages (spec.md §4.5).
func (r *Router) PTYOutput(p rpchub.PTYOutput) {
	if p.IsThinking {
		return
	}
	if r.admitMessage(p.SessionID, p.Content) {
		r.notifyPort(func() { r.port.Message(p.SessionID, "assistant", p.Content) })
	}
}

// PermissionRequest arbitrates an incoming permission request
// (spec.md §4.5).
func (r *Router) PermissionRequest(req rpchub.PermissionRequest) {
	if r.isYolo(req.SessionID) {
		r.respond(req.SessionID, req.RequestID, rpchub.Decision{Behavior: "allow"})
		r.auditDecision(req.SessionID, req.RequestID, req.ToolName, "allow", "", true)
		r.notifyPort(func() { r.port.Notify(req.SessionID, "auto-allowed ("+req.ToolName+") — YOLO mode") })
		return
	}

	if req.ToolName == askUserTool {
		r.handleStructuredQuestion(req)
		return
	}

	r.mu.Lock()
	r.pending[req.RequestID] = pendingPermission{sessionID: req.SessionID, toolName: req.ToolName}
	r.mu.Unlock()

	go r.resolvePermission(req)
}

func (r *Router) resolvePermission(req rpchub.PermissionRequest) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	decision, err := r.port.PermissionRequest(ctx, req.SessionID, req.RequestID, req.ToolName, req.ToolInput)
	if err != nil {
		// Adapter threw: respond deny, unless the specific failure is
		// "no thread available" which defaults to allow (spec.md §7).
		if err == ErrNoThreadAvailable {
			decision = chatport.Decision{Behavior: "allow"}
		} else {
			decision = chatport.Decision{Behavior: "deny", Message: "Error processing request"}
		}
	}
	r.deliverDecision(req.SessionID, req.RequestID, decision)
}

// deliverDecision finalizes a pending permission exactly once; a second
// attempt for the same request id is ignored (spec.md §4.5:
// "A decision may arrive only once per request id").
func (r *Router) deliverDecision(sessionID, requestID string, decision chatport.Decision) {
	r.mu.Lock()
	pending, ok := r.pending[requestID]
	if ok {
		delete(r.pending, requestID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.auditDecision(sessionID, requestID, pending.toolName, decision.Behavior, decision.Message, false)
	r.respond(sessionID, requestID, rpchub.Decision{
		Behavior:     decision.Behavior,
		Message:      decision.Message,
		UpdatedInput: decision.UpdatedInput,
	})
}

// SendPermissionDecision is called by the adapter when it resolves a
// pending permission through its own channel rather than the
// PermissionRequest return value (e.g. a UI callback fired later).
func (r *Router) SendPermissionDecision(sessionID, requestID string, decision chatport.Decision) {
	r.deliverDecision(sessionID, requestID, decision)
}

func (r *Router) handleStructuredQuestion(req rpchub.PermissionRequest) {
	var input struct {
		Questions []struct {
			ID          string   `json:"id"`
			Prompt      string   `json:"prompt"`
			MultiSelect bool     `json:"multiSelect"`
			Options     []string `json:"options"`
		} `json:"questions"`
	}
	_ = json.Unmarshal(req.ToolInput, &input)

	questions := make([]PendingQuestion, 0, len(input.Questions))
	portQuestions := make([]chatport.Question, 0, len(input.Questions))
	for _, q := range input.Questions {
		questions = append(questions, PendingQuestion{ID: q.ID, Prompt: q.Prompt, MultiSelect: q.MultiSelect, Options: q.Options})
		portQuestions = append(portQuestions, chatport.Question{ID: q.ID, Prompt: q.Prompt, MultiSelect: q.MultiSelect, Options: q.Options})
	}
	r.questions.Register(req.RequestID, req.SessionID, questions)

	go func() {
		ctx := context.Background()
		answers, err := r.port.StructuredQuestion(ctx, req.SessionID, req.RequestID, portQuestions)
		if err != nil {
			r.questions.Cancel(req.RequestID)
			r.respond(req.SessionID, req.RequestID, rpchub.Decision{Behavior: "deny", Message: "Error processing request"})
			return
		}
		r.AllowPendingAskUserQuestion(req.SessionID, req.RequestID, answers)
	}()
}

// AllowPendingAskUserQuestion records answers for a structured-question
// request and, once every question is answered, delivers an `allow`
// response whose updatedInput.answers carries the captured object
// (spec.md §4.5).
func (r *Router) AllowPendingAskUserQuestion(sessionID, requestID string, answers map[string]any) {
	r.questions.RecordAnswers(requestID, answers)
	final, ok := r.questions.TryFinalize(requestID)
	if !ok {
		return
	}
	payload, err := json.Marshal(struct {
		Answers map[string]any `json:"answers"`
	}{Answers: final})
	if err != nil {
		r.log.Warn("router: marshal ask-user answers failed", "session", sessionID, "err", err)
		return
	}
	r.auditDecision(sessionID, requestID, askUserTool, "allow", "", false)
	r.respond(sessionID, requestID, rpchub.Decision{Behavior: "allow", UpdatedInput: payload})
}

func (r *Router) respond(sessionID, requestID string, decision rpchub.Decision) {
	if r.hub == nil {
		return
	}
	if err := r.hub.SendPermissionResponse(sessionID, requestID, decision); err != nil {
		r.log.Warn("router: send permission response failed", "session", sessionID, "requestId", requestID, "err", err)
	}
}

// SendInput forwards adapter-originated text to the runner.
func (r *Router) SendInput(sessionID, text string) error {
	if r.hub == nil {
		return nil
	}
	return r.hub.SendInput(sessionID, text)
}

// notifyPort runs the adapter call; panics inside the adapter are the
// adapter's own bug and are not recovered here (the Hub/Tailer goroutines
// that call into the Router are already isolated per session).
func (r *Router) notifyPort(fn func()) {
	if r.port == nil {
		return
	}
	fn()
}
