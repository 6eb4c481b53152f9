package supervisor

import (
	"context"
	"time"

	"github.com/sleepcode/relayd/internal/registry"
)

// NotifyFunc delivers a chat-facing notice during startup reconciliation
// (spec.md §4.2: "the Router is asked to post a 'session lost' notice").
type NotifyFunc func(session registry.Session)

// RunHealthLoop ticks every healthLoopInterval, applying the state
// transitions of spec.md §4.2 to every non-terminal record, until ctx is
// canceled.
func (s *Supervisor) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.healthTick(time.Now())
		}
	}
}

func (s *Supervisor) healthTick(now time.Time) {
	for _, sess := range s.reg.List(registry.NonTerminal) {
		s.applyTransition(sess, now)
	}

	if s.AutoCleanupOrphans {
		for _, sess := range s.reg.List(registry.ByStatus(registry.StatusOrphaned)) {
			if IsAlive(sess.ChildPID) {
				if err := ForceKill(sess.ChildPID); err != nil {
					s.log.Warn("auto-cleanup kill failed", "session", sess.ID, "err", err)
					continue
				}
			}
			if err := s.reg.SetStatus(sess.ID, registry.StatusStopped); err != nil {
				s.log.Warn("auto-cleanup set-status failed", "session", sess.ID, "err", err)
			}
		}
	}

	s.pruneTerminal(now)
}

func (s *Supervisor) applyTransition(sess registry.Session, now time.Time) {
	alive := IsAlive(sess.ChildPID)

	switch sess.Status {
	case registry.StatusStarting:
		if !alive {
			s.setStatus(sess.ID, registry.StatusStopped)
			return
		}
		if now.Sub(sess.StartedAt) > orphanGraceAge && sess.ThreadID == "" {
			// no connecting RPC session yet and past the grace window
			s.setStatus(sess.ID, registry.StatusOrphaned)
		}
	case registry.StatusRunning, registry.StatusIdle:
		if !alive {
			s.setStatus(sess.ID, registry.StatusOrphaned)
		}
	case registry.StatusStopping:
		if !alive {
			s.setStatus(sess.ID, registry.StatusStopped)
		}
	}
}

func (s *Supervisor) setStatus(id string, status registry.Status) {
	if err := s.reg.SetStatus(id, status); err != nil {
		s.log.Warn("health loop set-status failed", "session", id, "status", status, "err", err)
	}
}

func (s *Supervisor) pruneTerminal(now time.Time) {
	for _, sess := range s.reg.List(func(st registry.Status) bool { return st.IsTerminal() }) {
		if now.Sub(sess.LastVerified) > retentionWindow {
			if err := s.reg.Remove(sess.ID); err != nil {
				s.log.Warn("prune remove failed", "session", sess.ID, "err", err)
			}
		}
	}
}

// Reconcile runs startup reconciliation (spec.md §4.2): every persisted
// terminal record with a chat-thread binding is fenced, notified, and
// removed.
func (s *Supervisor) Reconcile(notify NotifyFunc) {
	terminal := s.reg.List(func(st registry.Status) bool { return st.IsTerminal() })
	for _, sess := range terminal {
		if sess.ThreadID == "" {
			continue
		}
		s.reg.MarkReconciling(sess.ID)
		if notify != nil {
			notify(sess)
		}
		if err := s.reg.Remove(sess.ID); err != nil {
			s.log.Warn("reconcile remove failed", "session", sess.ID, "err", err)
		}
		s.reg.Unmark(sess.ID)
	}
}
