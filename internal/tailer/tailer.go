// Package tailer is the Tailer component (SPEC_FULL.md §4.3): one logical
// watcher per session over its append-only event-log file, combining an
// fsnotify write-quiesce stabilizer with a backstop poll, emitting
// normalized callbacks derived from each parsed record.
//
// The single-goroutine-owns-all-mutable-state shape (fsnotify events and
// a timer-driven debounce both collapse onto one "signals" channel feeding
// one run loop) is grounded directly on
// other_examples/2dfc8514_kylesnowschwartz-tail-claude's sessionWatcher,
// generalized from rebuilding a TUI message list to emitting the relay
// daemon's typed session events.
package tailer

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sleepcode/relayd/internal/dedupe"
	"github.com/sleepcode/relayd/internal/eventlog"
)

const (
	// stabilizeDelay is how long to wait after the last write event before
	// processing, coalescing rapid appends into one read (spec.md §4.3).
	stabilizeDelay = 300 * time.Millisecond
	// pollInterval is the backstop poll period (spec.md §4.3).
	pollInterval = 2 * time.Second
	// seenSetCap bounds the per-session line-hash dedup set (spec.md §3).
	seenSetCap = 10000
)

// EventKind enumerates the normalized callbacks the Tailer emits
// (spec.md §4.3, §6).
type EventKind string

const (
	EventNameUpdate     EventKind = "name-update"
	EventTodos          EventKind = "todos"
	EventPlanModeChange EventKind = "plan-mode-change"
	EventToolCall       EventKind = "tool-call"
	EventToolResult     EventKind = "tool-result"
	EventMessage        EventKind = "message"
	EventStatusChange   EventKind = "status-change"
)

// Event is a single normalized callback emitted by the Tailer.
type Event struct {
	Kind      EventKind
	SessionID string

	Name string // name-update
	Todos []byte // todos
	PlanMode bool // plan-mode-change

	ToolCallID    string // tool-call / tool-result
	ToolName      string // tool-call
	ToolInput     []byte // tool-call
	ToolResultText string // tool-result
	ToolIsError    bool    // tool-result

	Role string // message
	Text string // message

	Status string // status-change: "running" or "idle"

	Timestamp time.Time
}

// Sink receives Tailer events. Implemented by the Router.
type Sink interface {
	TailerEvent(Event)
}

// Tailer watches a single session's event-log file.
type Tailer struct {
	sessionID   string
	path        string
	sessionStart time.Time
	sink        Sink
	log         *slog.Logger

	offset int64
	seen   *dedupe.LRUSet

	nameEmitted  bool
	lastTodosHash string
	planModeOn   bool

	signals chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup

	processing sync.Mutex // re-entrancy guard: fsnotify and poll never overlap
}

// New creates a Tailer for sessionID reading path, starting from offset
// (0 on first attach). sessionStart gates the "not earlier than session
// start" rule in message emission (spec.md §4.3).
func New(sessionID, path string, offset int64, sessionStart time.Time, sink Sink, log *slog.Logger) *Tailer {
	if log == nil {
		log = slog.Default()
	}
	return &Tailer{
		sessionID:    sessionID,
		path:         path,
		sessionStart: sessionStart,
		sink:         sink,
		log:          log,
		offset:       offset,
		seen:         dedupe.NewLRUSet(seenSetCap),
		signals:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Offset returns the current consumed byte offset, for persistence across
// restarts.
func (t *Tailer) Offset() int64 {
	return t.offset
}

// Stop ends the watcher's run loop and waits for it to exit.
func (t *Tailer) Stop() {
	close(t.done)
	t.wg.Wait()
}

func (t *Tailer) sendSignal() {
	select {
	case t.signals <- struct{}{}:
	default:
	}
}

// Run starts the fsnotify-plus-poll loop. Intended to be called as a
// goroutine; returns when Stop is called.
func (t *Tailer) Run() {
	t.wg.Add(1)
	defer t.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.log.Warn("tailer: fsnotify init failed, relying on poll only", "session", t.sessionID, "err", err)
		t.pollOnly()
		return
	}
	defer watcher.Close()

	if err := watcher.Add(t.path); err != nil {
		// File-not-yet-existing is expected (spec.md §4.3 fail modes).
		t.log.Debug("tailer: watch target not present yet", "session", t.sessionID, "path", t.path)
	}

	var debounce *time.Timer
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	t.process() // catch up on anything written before Run started

	for {
		select {
		case <-t.done:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case <-t.signals:
			t.process()

		case <-poll.C:
			t.sendSignal()

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != t.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(stabilizeDelay, t.sendSignal)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			t.log.Warn("tailer: fsnotify error", "session", t.sessionID, "err", err)
		}
	}
}

// pollOnly is the degraded path when fsnotify itself cannot be
// initialized; the backstop poll alone still guarantees eventual delivery.
func (t *Tailer) pollOnly() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	t.process()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.process()
		}
	}
}

// process implements the §4.3 "Process" algorithm. Guarded by a
// re-entrancy mutex so overlapping fsnotify and poll wake-ups never
// process the same bytes concurrently (spec.md §5).
func (t *Tailer) process() {
	if !t.processing.TryLock() {
		return
	}
	defer t.processing.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.log.Warn("tailer: open failed", "session", t.sessionID, "err", err)
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		t.log.Warn("tailer: stat failed", "session", t.sessionID, "err", err)
		return
	}
	if info.Size() <= t.offset {
		return
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		t.log.Warn("tailer: seek failed", "session", t.sessionID, "err", err)
		return
	}
	buf := make([]byte, info.Size()-t.offset)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		t.log.Warn("tailer: read failed", "session", t.sessionID, "err", err)
		return
	}
	buf = buf[:n]

	lines := bytes.Split(buf, []byte("\n"))
	// Final fragment is retained as incomplete; offset advances only past
	// complete lines (spec.md §3 invariant).
	complete := lines[:len(lines)-1]
	incomplete := lines[len(lines)-1]

	consumed := int64(0)
	for _, line := range complete {
		consumed += int64(len(line)) + 1 // +1 for the newline
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		t.processLine(line)
	}
	t.offset += consumed
	_ = incomplete // retained implicitly: offset stops before it
}

func (t *Tailer) processLine(line []byte) {
	hash := eventlog.LineHash(line)
	if !t.seen.Insert(hash) {
		return
	}

	record, err := eventlog.Parse(line)
	if err != nil {
		// Malformed line: skip, offset already advanced past it
		// (spec.md §7).
		return
	}

	ts, _ := record.ParsedTimestamp()

	if record.Slug != "" && !t.nameEmitted {
		t.nameEmitted = true
		t.emit(Event{Kind: EventNameUpdate, SessionID: t.sessionID, Name: record.Slug, Timestamp: ts})
	}

	if record.HasTodos() {
		h := eventlog.TodosHash(record.Todos)
		if h != t.lastTodosHash {
			t.lastTodosHash = h
			t.emit(Event{Kind: EventTodos, SessionID: t.sessionID, Todos: record.Todos, Timestamp: ts})
		}
	}

	if record.Message == nil {
		return
	}

	if record.Message.Role == "user" {
		if text, ok := record.Message.Text(); ok {
			t.processPlanMode(text, ts)
		}
	}

	if items, ok := record.Message.Items(); ok {
		t.processItems(record, items, ts)
		if record.IsSyntheticSubtype() || !t.acceptMessageTimestamp(ts) {
			return
		}
		if text := joinTextItems(items); text != "" {
			t.emitMessage(record.Message.Role, text, ts)
		}
		return
	}

	if record.IsSyntheticSubtype() {
		return
	}

	text, ok := record.Message.Text()
	if !ok || !t.acceptMessageTimestamp(ts) {
		return
	}
	t.emitMessage(record.Message.Role, text, ts)
}

// joinTextItems concatenates the text of every ContentText item, the
// array-content analogue of a bare-string message body (spec.md §4.3: an
// assistant turn's content array may carry both text and tool_use items).
func joinTextItems(items []eventlog.ContentItem) string {
	out := ""
	for _, it := range items {
		if it.Type == string(eventlog.ContentText) {
			out += it.Text
		}
	}
	return out
}

func (t *Tailer) processPlanMode(text string, ts time.Time) {
	entering, exiting := eventlog.PlanModeTransition(text)
	if entering && !t.planModeOn {
		t.planModeOn = true
		t.emit(Event{Kind: EventPlanModeChange, SessionID: t.sessionID, PlanMode: true, Timestamp: ts})
	} else if exiting && t.planModeOn {
		t.planModeOn = false
		t.emit(Event{Kind: EventPlanModeChange, SessionID: t.sessionID, PlanMode: false, Timestamp: ts})
	}
}

func (t *Tailer) processItems(record eventlog.Record, items []eventlog.ContentItem, ts time.Time) {
	for _, item := range items {
		switch item.Type {
		case string(eventlog.ContentToolUse):
			t.emit(Event{
				Kind: EventToolCall, SessionID: t.sessionID,
				ToolCallID: item.ID, ToolName: item.Name, ToolInput: item.Input, Timestamp: ts,
			})
		case string(eventlog.ContentToolResult):
			t.emit(Event{
				Kind: EventToolResult, SessionID: t.sessionID,
				ToolCallID: item.ToolUseID, ToolResultText: eventlog.JoinText(item.Content),
				ToolIsError: item.IsError, Timestamp: ts,
			})
		}
	}
}

func (t *Tailer) acceptMessageTimestamp(ts time.Time) bool {
	if ts.IsZero() {
		return true
	}
	return !ts.Before(t.sessionStart)
}

func (t *Tailer) emitMessage(role, text string, ts time.Time) {
	status := "idle"
	if role == "user" {
		status = "running"
	}
	t.emit(Event{Kind: EventStatusChange, SessionID: t.sessionID, Status: status, Timestamp: ts})
	t.emit(Event{Kind: EventMessage, SessionID: t.sessionID, Role: role, Text: text, Timestamp: ts})
}

func (t *Tailer) emit(ev Event) {
	if t.sink != nil {
		t.sink.TailerEvent(ev)
	}
}
