// Package daemon wires every component (SPEC_FULL.md §2/§3) into one
// running process: Registry, Supervisor health loop, RPC Hub, Router, and
// a Tailer per connected session. Main-loop shape (context + signal
// channel + errCh fan-in + graceful shutdown sleep) is grounded on the
// teacher's own internal/daemon/daemon.go Run(cfg).
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sleepcode/relayd/internal/auditlog"
	"github.com/sleepcode/relayd/internal/chatport"
	"github.com/sleepcode/relayd/internal/chatport/logport"
	"github.com/sleepcode/relayd/internal/registry"
	"github.com/sleepcode/relayd/internal/router"
	"github.com/sleepcode/relayd/internal/rpchub"
	"github.com/sleepcode/relayd/internal/supervisor"
	"github.com/sleepcode/relayd/internal/tailer"
)

// Options configures one daemon run.
type Options struct {
	Dir                string // e.g. ~/.relayd; holds registry.json, mapping.json, audit.db
	SocketPath         string
	HealthInterval     time.Duration
	AutoCleanupOrphans bool
	// Port is the chat adapter. A logport.Port is used when nil, so the
	// daemon is runnable standalone (spec.md's chat adapters are a
	// separate binary, out of scope for this repository).
	Port chatport.Port
	Log  *slog.Logger
}

// Daemon holds every wired component for the lifetime of one Run call.
type Daemon struct {
	Registry   *registry.Registry
	Mapping    *router.MappingStore
	Audit      *auditlog.Log
	Supervisor *supervisor.Supervisor
	Router     *router.Router
	Hub        *rpchub.Hub

	log *slog.Logger

	mu      sync.Mutex
	tailers map[string]*tailer.Tailer
}

// Run builds every component from opts and blocks until ctx is canceled,
// an OS signal arrives, or a component fails. Only the OS-signal path waits
// a one-second grace period before returning, matching the teacher's own
// daemon.Run; a canceled ctx or a component error returns at once.
func Run(ctx context.Context, opts Options) error {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	reg := registry.New(filepath.Join(opts.Dir, "registry.json"))
	if err := reg.Load(); err != nil {
		return fmt.Errorf("daemon: load registry: %w", err)
	}

	mapping := router.NewMappingStore(filepath.Join(opts.Dir, "mapping.json"))
	if err := mapping.Load(); err != nil {
		return fmt.Errorf("daemon: load mapping: %w", err)
	}

	audit, err := auditlog.Open(filepath.Join(opts.Dir, "audit.db"))
	if err != nil {
		return fmt.Errorf("daemon: open audit log: %w", err)
	}
	defer audit.Close()

	port := opts.Port
	if port == nil {
		port = logport.New(log)
	}

	sup := supervisor.New(reg, log)
	sup.AutoCleanupOrphans = opts.AutoCleanupOrphans

	r := router.New(reg, nil, port, mapping, log)
	r.SetAuditLog(audit)

	d := &Daemon{
		Registry:   reg,
		Mapping:    mapping,
		Audit:      audit,
		Supervisor: sup,
		Router:     r,
		log:        log,
		tailers:    make(map[string]*tailer.Tailer),
	}

	hub := rpchub.New(opts.SocketPath, &daemonSink{d: d, router: r}, log)
	d.Hub = hub
	r.SetHub(hub)

	notifySessionLost := func(sess registry.Session) {
		port.Notify(sess.ID, "session lost during daemon restart: "+sess.ID)
		// The chat thread this session was bound to is now orphaned;
		// drop the persisted mapping so a future session id never
		// revives into a thread that already got the "lost" notice.
		if err := mapping.Delete(sess.ID); err != nil {
			log.Warn("reconcile: mapping delete failed", "session", sess.ID, "err", err)
		}
	}
	sup.Reconcile(notifySessionLost)

	healthInterval := opts.HealthInterval
	if healthInterval <= 0 {
		healthInterval = 60 * time.Second
	}

	errCh := make(chan error, 2)

	go func() {
		log.Info("health loop started", "interval", healthInterval)
		sup.RunHealthLoop(ctx)
		errCh <- nil
	}()

	go func() {
		log.Info("rpc hub listening", "socket", opts.SocketPath)
		errCh <- hub.ListenAndServe(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
		d.stopAllTailers()
		time.Sleep(time.Second)
		return nil
	case <-ctx.Done():
		d.stopAllTailers()
		return nil
	case err := <-errCh:
		d.stopAllTailers()
		if err != nil {
			return fmt.Errorf("daemon: component error: %w", err)
		}
		return nil
	}
}

func (d *Daemon) stopAllTailers() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.tailers {
		t.Stop()
		delete(d.tailers, id)
	}
}

// daemonSink wraps the Router as the Hub's Sink, adding Tailer lifecycle
// management: a session_start frame that names a jsonlFile spins up a
// Tailer alongside the Router's own bookkeeping; session_end stops it.
type daemonSink struct {
	d      *Daemon
	router *router.Router
}

func (s *daemonSink) SessionStart(start rpchub.SessionStart) {
	s.router.SessionStart(start)
	if start.JSONLFile == "" {
		return
	}

	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, exists := s.d.tailers[start.ID]; exists {
		return
	}
	t := tailer.New(start.ID, start.JSONLFile, 0, time.Now(), s.router, s.d.log)
	s.d.tailers[start.ID] = t
	go t.Run()
}

func (s *daemonSink) SessionEnd(sessionID string) {
	s.router.SessionEnd(sessionID)
	s.d.mu.Lock()
	t, ok := s.d.tailers[sessionID]
	if ok {
		delete(s.d.tailers, sessionID)
	}
	s.d.mu.Unlock()
	if ok {
		t.Stop()
	}
}

func (s *daemonSink) TitleUpdate(t rpchub.TitleUpdate) { s.router.TitleUpdate(t) }
func (s *daemonSink) PTYOutput(p rpchub.PTYOutput)     { s.router.PTYOutput(p) }
func (s *daemonSink) PermissionRequest(req rpchub.PermissionRequest) {
	s.router.PermissionRequest(req)
}
