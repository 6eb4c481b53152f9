// Package supervisor is the Supervisor component (SPEC_FULL.md §4.2):
// spawns runner children, probes liveness by signal-0, drives the health
// loop's state transitions, and performs graceful-then-forceful kill.
//
// Spawn idiom is grounded on the teacher's own cmd/wt/wing.go daemonize
// path (Setsid child). Liveness probing uses golang.org/x/sys/unix.Kill
// with signal 0, the portable alternative to
// os.Process.Signal(syscall.Signal(0)) the DOMAIN STACK wires in for this
// component. Terminal-attached launch is grounded on victorarias-attn's
// internal/wrapper/window_darwin.go osascript idiom, generalized from
// "find this session's window" to "open a new window running the runner".
package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sleepcode/relayd/internal/registry"
)

// LaunchStrategy selects how a runner child is started (spec.md §4.2).
type LaunchStrategy string

const (
	// LaunchBackground starts a fully detached child (new session via
	// Setsid) with stdio suppressed, or with stdout/stderr appended to
	// LaunchSpec.LogPath when one is given.
	LaunchBackground LaunchStrategy = "background"
	// LaunchTerminalAttached asks the host terminal emulator to open a
	// window running the runner; this path is macOS-only.
	LaunchTerminalAttached LaunchStrategy = "terminal-attached"
)

// LaunchSpec describes a runner to start.
type LaunchSpec struct {
	SessionID string
	Command   []string
	Cwd       string
	Strategy  LaunchStrategy
	LogPath   string   // background strategy only
	Env       []string // extra KEY=VALUE pairs appended to the child's environment
}

const (
	// orphanGraceAge is how long a starting session may run without a
	// connecting RPC session before it is declared orphaned (spec.md §4.2).
	orphanGraceAge = 30 * time.Second
	// healthLoopInterval is the health loop's tick period (spec.md §4.2).
	healthLoopInterval = 60 * time.Second
	// retentionWindow is how long a terminal session record survives
	// before pruning (spec.md §3).
	retentionWindow = 24 * time.Hour

	sigintWait = 5 * time.Second
	sigtermWait = 3 * time.Second
)

// Supervisor owns process lifecycle for supervised sessions: spawning,
// liveness probing, health-loop transitions, and kill sequencing. It does
// not own the Registry; it is handed one and mutates it through its
// write-through API, matching spec.md §3's ownership split.
type Supervisor struct {
	reg    *registry.Registry
	log    *slog.Logger
	AutoCleanupOrphans bool
}

// New creates a Supervisor driving the given Registry.
func New(reg *registry.Registry, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{reg: reg, log: log}
}

// Launch starts a runner child per spec and upserts its starting record.
// Returns the child pid, or 0 for a terminal-attached launch whose child
// is not a direct descendant.
func (s *Supervisor) Launch(spec LaunchSpec) (int, error) {
	var pid int
	switch spec.Strategy {
	case LaunchTerminalAttached:
		if err := openTerminalWindow(spec.Command, spec.Cwd); err != nil {
			return 0, fmt.Errorf("open terminal window: %w", err)
		}
	default:
		p, err := s.launchBackground(spec)
		if err != nil {
			return 0, err
		}
		pid = p
	}

	sess := registry.Session{
		ID:        spec.SessionID,
		Cwd:       spec.Cwd,
		ChildPID:  pid,
		Command:   spec.Command,
		Status:    registry.StatusStarting,
		StartedAt: time.Now(),
	}
	if len(spec.Command) > 0 {
		sess.Name = spec.Command[0]
	}
	if err := s.reg.Upsert(sess); err != nil {
		s.log.Warn("launch: registry upsert failed", "session", spec.SessionID, "err", err)
	}
	return pid, nil
}

func (s *Supervisor) launchBackground(spec LaunchSpec) (int, error) {
	if len(spec.Command) == 0 {
		return 0, fmt.Errorf("launch background: empty command")
	}
	child := exec.Command(spec.Command[0], spec.Command[1:]...)
	child.Dir = spec.Cwd
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if len(spec.Env) > 0 {
		child.Env = append(os.Environ(), spec.Env...)
	}

	if spec.LogPath != "" {
		logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("open log: %w", err)
		}
		defer logFile.Close()
		child.Stdout = logFile
		child.Stderr = logFile
	} else {
		child.Stdout = nil
		child.Stderr = nil
	}

	if err := child.Start(); err != nil {
		return 0, fmt.Errorf("start runner: %w", err)
	}
	return child.Process.Pid, nil
}

// IsAlive probes liveness by signal-0. Pid 0 is always treated as
// never-alive (spec.md §4.2).
func IsAlive(pid int) bool {
	if pid == 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// GracefulKill runs the interrupt/terminate/kill escalation sequence,
// returning once the pid is no longer alive (spec.md §4.2).
func GracefulKill(pid int) error {
	if !IsAlive(pid) {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	proc.Signal(syscall.SIGINT)
	if waitForDeath(pid, sigintWait) {
		return nil
	}

	proc.Signal(syscall.SIGTERM)
	if waitForDeath(pid, sigtermWait) {
		return nil
	}

	return ForceKill(pid)
}

// ForceKill skips straight to the kill signal (spec.md §4.2).
func ForceKill(pid int) error {
	if !IsAlive(pid) {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGKILL); err != nil {
		return err
	}
	waitForDeath(pid, 2*time.Second)
	return nil
}

func waitForDeath(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsAlive(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !IsAlive(pid)
}

// openTerminalWindow shells out to the host OS's scripting facility. The
// concrete implementation lives in launch_darwin.go; other platforms use
// the stub in launch_other.go, which returns an error (spec.md §6: this
// path is macOS-only).
var openTerminalWindow = openTerminalWindowPlatform
