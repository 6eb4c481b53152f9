package router

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sleepcode/relayd/internal/auditlog"
	"github.com/sleepcode/relayd/internal/chatport"
	"github.com/sleepcode/relayd/internal/chatport/chatporttest"
	"github.com/sleepcode/relayd/internal/registry"
	"github.com/sleepcode/relayd/internal/rpchub"
	"github.com/sleepcode/relayd/internal/tailer"
	"github.com/stretchr/testify/mock"
)

func openTestAuditLog(t *testing.T) *auditlog.Log {
	t.Helper()
	l, err := auditlog.Open(":memory:")
	if err != nil {
		t.Fatalf("open test audit log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

type fakeHub struct {
	mu        sync.Mutex
	inputs    []string
	responses []rpchub.PermissionResponse
}

func (f *fakeHub) SendInput(sessionID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, sessionID+":"+text)
	return nil
}

func (f *fakeHub) SendPermissionResponse(sessionID, requestID string, decision rpchub.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, rpchub.PermissionResponse{RequestID: requestID, Decision: decision})
	return nil
}

func (f *fakeHub) responseFor(requestID string) (rpchub.PermissionResponse, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.responses {
		if r.RequestID == requestID {
			return r, true
		}
	}
	return rpchub.PermissionResponse{}, false
}

func newTestRouter(t *testing.T) (*Router, *fakeHub, *chatporttest.Port) {
	t.Helper()
	dir := t.TempDir()
	reg := registry.New(filepath.Join(dir, "registry.json"))
	mapping := NewMappingStore(filepath.Join(dir, "mapping.json"))
	hub := &fakeHub{}
	port := chatporttest.New(t)
	return New(reg, hub, port, mapping, nil), hub, port
}

func TestTailerEvent_MessageFirstArrivalWins(t *testing.T) {
	r, _, port := newTestRouter(t)
	port.On("Message", "s1", "assistant", "hi").Return().Once()

	r.TailerEvent(tailer.Event{Kind: tailer.EventMessage, SessionID: "s1", Role: "assistant", Text: "hi"})
	// PTY fallback arrives second with the same text: suppressed.
	r.PTYOutput(rpchub.PTYOutput{SessionID: "s1", Content: "hi"})

	port.AssertExpectations(t)
}

func TestPTYOutput_FirstArrivalWinsOverLateTailer(t *testing.T) {
	r, _, port := newTestRouter(t)
	port.On("Message", "s1", "assistant", "done").Return().Once()

	r.PTYOutput(rpchub.PTYOutput{SessionID: "s1", Content: "done"})
	r.TailerEvent(tailer.Event{Kind: tailer.EventMessage, SessionID: "s1", Role: "assistant", Text: "done"})

	port.AssertExpectations(t)
}

func TestPTYOutput_ThinkingSuppressed(t *testing.T) {
	r, _, port := newTestRouter(t)
	r.PTYOutput(rpchub.PTYOutput{SessionID: "s1", Content: "still working", IsThinking: true})
	port.AssertNotCalled(t, "Message", mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionStart_PersistsLiveThreadBinding(t *testing.T) {
	r, _, port := newTestRouter(t)
	port.On("SessionStart", "s1").Return().Once()
	port.On("ThreadFor", "s1").Return("t1", true).Once()

	r.SessionStart(rpchub.SessionStart{ID: "s1", Cwd: "/tmp", Command: []string{"claude"}})

	sess, err := r.reg.Get("s1")
	if err != nil {
		t.Fatalf("expected session registered: %v", err)
	}
	if sess.ThreadID != "t1" {
		t.Fatalf("expected registry thread binding t1, got %q", sess.ThreadID)
	}
	m, ok := r.mapping.Get("s1")
	if !ok || m.ThreadID != "t1" || m.Cwd != "/tmp" {
		t.Fatalf("expected persisted mapping for s1/t1, got %+v ok=%v", m, ok)
	}
	port.AssertExpectations(t)
}

func TestSessionStart_RevivesPersistedMapping(t *testing.T) {
	r, _, port := newTestRouter(t)
	r.mapping.Set(ThreadMapping{SessionID: "s1", ThreadID: "t1", ChannelID: "c1", Cwd: "/tmp"})
	port.On("SessionStart", "s1").Return().Once()
	port.On("ThreadFor", "s1").Return("", false).Once()
	port.On("Revive", "s1", "t1").Return(true).Once()

	r.SessionStart(rpchub.SessionStart{ID: "s1", Cwd: "/tmp", Command: []string{"claude"}})

	sess, err := r.reg.Get("s1")
	if err != nil {
		t.Fatalf("expected session registered: %v", err)
	}
	if sess.ThreadID != "t1" || sess.ChannelID != "c1" {
		t.Fatalf("expected revived binding t1/c1, got %q/%q", sess.ThreadID, sess.ChannelID)
	}
	port.AssertExpectations(t)
}

func TestSessionStartEnd_RecordsAuditEvents(t *testing.T) {
	r, _, port := newTestRouter(t)
	audit := openTestAuditLog(t)
	r.SetAuditLog(audit)

	port.On("SessionStart", "s1").Return().Once()
	port.On("ThreadFor", "s1").Return("", false).Maybe()
	port.On("SessionEnd", "s1").Return().Once()

	r.SessionStart(rpchub.SessionStart{ID: "s1", Cwd: "/tmp"})
	r.SessionEnd("s1")

	events, err := audit.ListSessionEvents("s1")
	if err != nil {
		t.Fatalf("list session events: %v", err)
	}
	if len(events) != 2 || events[0].Event != "session_start" || events[1].Event != "session_end" {
		t.Fatalf("expected [session_start session_end], got %+v", events)
	}
}

func TestPermissionRequest_YoloRecordsAuditDecision(t *testing.T) {
	r, _, port := newTestRouter(t)
	audit := openTestAuditLog(t)
	r.SetAuditLog(audit)
	r.SetYolo("s1", true)
	port.On("Notify", "s1", mock.Anything).Return().Once()

	r.PermissionRequest(rpchub.PermissionRequest{SessionID: "s1", RequestID: "r1", ToolName: "Bash"})

	decisions, err := audit.ListDecisions("s1")
	if err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Behavior != "allow" || !decisions[0].Yolo {
		t.Fatalf("expected one yolo allow decision, got %+v", decisions)
	}
}

func TestSessionStart_UpsertsRegistryAndNotifies(t *testing.T) {
	r, _, port := newTestRouter(t)
	port.On("SessionStart", "s1").Return().Once()
	port.On("ThreadFor", "s1").Return("", false).Maybe()

	r.SessionStart(rpchub.SessionStart{ID: "s1", Cwd: "/tmp", Command: []string{"claude"}})

	sess, err := r.reg.Get("s1")
	if err != nil {
		t.Fatalf("expected session registered: %v", err)
	}
	if sess.Status != registry.StatusRunning {
		t.Fatalf("expected running status, got %s", sess.Status)
	}
	port.AssertExpectations(t)
}

func TestSessionStart_IgnoredWhileReconciling(t *testing.T) {
	r, _, port := newTestRouter(t)
	r.reg.MarkReconciling("s1")

	r.SessionStart(rpchub.SessionStart{ID: "s1", Cwd: "/tmp"})

	if _, err := r.reg.Get("s1"); err != registry.ErrNotFound {
		t.Fatalf("expected reconciling session-start to be ignored, got session present (err=%v)", err)
	}
	port.AssertNotCalled(t, "SessionStart", mock.Anything)
}

func TestSessionEnd_EmitsOnceAndClearsPendingState(t *testing.T) {
	r, _, port := newTestRouter(t)
	port.On("SessionStart", "s1").Return().Once()
	port.On("ThreadFor", "s1").Return("", false).Maybe()
	port.On("SessionEnd", "s1").Return().Once()

	r.SessionStart(rpchub.SessionStart{ID: "s1", Cwd: "/tmp"})
	r.mu.Lock()
	r.pending["req1"] = pendingPermission{sessionID: "s1", toolName: "Bash"}
	r.mu.Unlock()

	r.SessionEnd("s1")

	r.mu.Lock()
	_, stillPending := r.pending["req1"]
	r.mu.Unlock()
	if stillPending {
		t.Fatal("expected pending permission cleared on session end")
	}

	sess, _ := r.reg.Get("s1")
	if sess.Status != registry.StatusStopped {
		t.Fatalf("expected stopped status, got %s", sess.Status)
	}
	port.AssertExpectations(t)
}

func TestPermissionRequest_YoloAutoAllows(t *testing.T) {
	r, hub, port := newTestRouter(t)
	port.On("Notify", "s1", mock.Anything).Return().Once()
	r.SetYolo("s1", true)

	r.PermissionRequest(rpchub.PermissionRequest{RequestID: "r1", SessionID: "s1", ToolName: "Bash"})

	waitForTest(t, func() bool {
		resp, ok := hub.responseFor("r1")
		return ok && resp.Decision.Behavior == "allow"
	})
	port.AssertExpectations(t)
}

func TestPermissionRequest_NonYoloAsksAdapterAndDelivers(t *testing.T) {
	r, hub, port := newTestRouter(t)
	port.On("PermissionRequest", mock.Anything, "s1", "r1", "Bash", mock.Anything).
		Return(chatport.Decision{Behavior: "allow"}, nil).Once()

	r.PermissionRequest(rpchub.PermissionRequest{RequestID: "r1", SessionID: "s1", ToolName: "Bash"})

	waitForTest(t, func() bool {
		resp, ok := hub.responseFor("r1")
		return ok && resp.Decision.Behavior == "allow"
	})
	port.AssertExpectations(t)
}

func TestPermissionRequest_SecondDecisionIgnored(t *testing.T) {
	r, hub, _ := newTestRouter(t)
	r.mu.Lock()
	r.pending["r1"] = pendingPermission{sessionID: "s1", toolName: "Bash"}
	r.mu.Unlock()

	r.deliverDecision("s1", "r1", chatport.Decision{Behavior: "allow"})
	r.deliverDecision("s1", "r1", chatport.Decision{Behavior: "deny"})

	var count int
	hub.mu.Lock()
	for _, resp := range hub.responses {
		if resp.RequestID == "r1" {
			count++
		}
	}
	hub.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one delivered decision, got %d", count)
	}
}

func TestStructuredQuestion_WaitsForAllAnswersThenAllows(t *testing.T) {
	r, hub, port := newTestRouter(t)
	toolInput, _ := json.Marshal(map[string]any{
		"questions": []map[string]any{
			{"id": "0", "prompt": "pick a color"},
			{"id": "1", "prompt": "pick a size"},
		},
	})

	gotAnswers := make(chan struct{})
	port.On("StructuredQuestion", mock.Anything, "s1", "r1", mock.Anything).
		Run(func(args mock.Arguments) {
			go func() {
				r.AllowPendingAskUserQuestion("s1", "r1", map[string]any{"0": "red"})
				r.AllowPendingAskUserQuestion("s1", "r1", map[string]any{"1": "large"})
				close(gotAnswers)
			}()
		}).
		Return(map[string]any{"0": "red", "1": "large"}, nil).Once()

	r.PermissionRequest(rpchub.PermissionRequest{RequestID: "r1", SessionID: "s1", ToolName: askUserTool, ToolInput: toolInput})

	<-gotAnswers
	waitForTest(t, func() bool {
		resp, ok := hub.responseFor("r1")
		return ok && resp.Decision.Behavior == "allow"
	})

	resp, _ := hub.responseFor("r1")
	var decoded struct {
		Answers map[string]any `json:"answers"`
	}
	if err := json.Unmarshal(resp.Decision.UpdatedInput, &decoded); err != nil {
		t.Fatalf("decode updated input: %v", err)
	}
	if decoded.Answers["0"] != "red" || decoded.Answers["1"] != "large" {
		t.Fatalf("unexpected captured answers: %+v", decoded.Answers)
	}
}

func TestSendInput_ForwardsToHub(t *testing.T) {
	r, hub, _ := newTestRouter(t)
	if err := r.SendInput("s1", "hello"); err != nil {
		t.Fatalf("send input: %v", err)
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if len(hub.inputs) != 1 || hub.inputs[0] != "s1:hello" {
		t.Fatalf("unexpected inputs: %v", hub.inputs)
	}
}

func waitForTest(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
