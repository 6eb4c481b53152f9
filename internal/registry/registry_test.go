package registry

import (
	"path/filepath"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "registry.json"))
}

func TestUpsertAndGet(t *testing.T) {
	r := newTestRegistry(t)
	s := Session{ID: "s1", Cwd: "/tmp/proj", Status: StatusStarting}
	if err := r.Upsert(s); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := r.Get("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Cwd != "/tmp/proj" || got.Status != StatusStarting {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Get("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetStatus_InvokesCallbackOnlyOnChange(t *testing.T) {
	r := newTestRegistry(t)
	r.Upsert(Session{ID: "s1", Status: StatusStarting})

	var calls int
	var lastOld, lastNew Status
	r.OnStatusChange(func(id string, old, new Status) {
		calls++
		lastOld, lastNew = old, new
	})

	if err := r.SetStatus("s1", StatusRunning); err != nil {
		t.Fatalf("set-status: %v", err)
	}
	if calls != 1 || lastOld != StatusStarting || lastNew != StatusRunning {
		t.Fatalf("expected one callback starting->running, got calls=%d old=%s new=%s", calls, lastOld, lastNew)
	}

	// setting the same status again must not fire the callback
	if err := r.SetStatus("s1", StatusRunning); err != nil {
		t.Fatalf("set-status (no-op): %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected callback not to fire on no-op transition, got %d calls", calls)
	}
}

func TestSetStatus_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.SetStatus("missing", StatusRunning); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetThread_Persists(t *testing.T) {
	r := newTestRegistry(t)
	r.Upsert(Session{ID: "s1", Status: StatusRunning})
	if err := r.SetThread("s1", "thread-1", "chan-1"); err != nil {
		t.Fatalf("set-thread: %v", err)
	}
	got, _ := r.Get("s1")
	if got.ThreadID != "thread-1" || got.ChannelID != "chan-1" {
		t.Fatalf("unexpected binding: %+v", got)
	}
}

func TestList_FiltersByStatus(t *testing.T) {
	r := newTestRegistry(t)
	r.Upsert(Session{ID: "s1", Status: StatusRunning})
	r.Upsert(Session{ID: "s2", Status: StatusStopped})
	r.Upsert(Session{ID: "s3", Status: StatusOrphaned})

	running := r.List(ByStatus(StatusRunning))
	if len(running) != 1 || running[0].ID != "s1" {
		t.Fatalf("expected only s1 running, got %+v", running)
	}

	nonTerminal := r.List(NonTerminal)
	if len(nonTerminal) != 1 || nonTerminal[0].ID != "s1" {
		t.Fatalf("expected only s1 non-terminal, got %+v", nonTerminal)
	}

	all := r.List(nil)
	if len(all) != 3 {
		t.Fatalf("expected 3 sessions with nil filter, got %d", len(all))
	}
}

func TestLoad_RoundTripsThroughDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")

	r1 := New(path)
	r1.Upsert(Session{ID: "s1", Cwd: "/tmp/a", Status: StatusRunning})
	r1.Upsert(Session{ID: "s2", Cwd: "/tmp/b", Status: StatusIdle})

	r2 := New(path)
	if err := r2.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := r2.Get("s1")
	if err != nil || got.Cwd != "/tmp/a" {
		t.Fatalf("unexpected round-tripped session: %+v err=%v", got, err)
	}
	if len(r2.List(nil)) != 2 {
		t.Fatalf("expected 2 sessions after load, got %d", len(r2.List(nil)))
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Load(); err != nil {
		t.Fatalf("expected missing file load to succeed, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	r := newTestRegistry(t)
	r.Upsert(Session{ID: "s1", Status: StatusStopped})
	if err := r.Remove("s1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := r.Get("s1"); err != ErrNotFound {
		t.Fatalf("expected removed session to be gone, got %v", err)
	}
	if err := r.Remove("s1"); err != ErrNotFound {
		t.Fatalf("expected second remove to fail with ErrNotFound, got %v", err)
	}
}

func TestReconcilingFence(t *testing.T) {
	r := newTestRegistry(t)
	if r.IsReconciling("s1") {
		t.Fatal("expected s1 not reconciling by default")
	}
	r.MarkReconciling("s1")
	if !r.IsReconciling("s1") {
		t.Fatal("expected s1 to be fenced after MarkReconciling")
	}
	r.Unmark("s1")
	if r.IsReconciling("s1") {
		t.Fatal("expected s1 fence cleared after Unmark")
	}
}
