package auditlog

import (
	"fmt"
	"time"
)

// SessionEvent is one recorded lifecycle transition (spec.md §4.2 statuses,
// plus "session_start"/"session_end" from the Hub).
type SessionEvent struct {
	ID         int64
	SessionID  string
	Event      string
	Detail     *string
	OccurredAt time.Time
}

// AppendSessionEvent records sessionID transitioning to event (e.g.
// "running", "idle", "stopped", "orphaned"), with an optional free-text
// detail.
func (l *Log) AppendSessionEvent(sessionID, event string, detail *string) error {
	_, err := l.db.Exec(
		"INSERT INTO session_events (session_id, event, detail) VALUES (?, ?, ?)",
		sessionID, event, detail,
	)
	if err != nil {
		return fmt.Errorf("auditlog: append session event: %w", err)
	}
	return nil
}

// ListSessionEvents returns every recorded event for sessionID in
// chronological order.
func (l *Log) ListSessionEvents(sessionID string) ([]*SessionEvent, error) {
	rows, err := l.db.Query(
		`SELECT id, session_id, event, detail, occurred_at
		 FROM session_events WHERE session_id = ? ORDER BY occurred_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("auditlog: list session events: %w", err)
	}
	defer rows.Close()

	var out []*SessionEvent
	for rows.Next() {
		e := &SessionEvent{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Event, &e.Detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("auditlog: scan session event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
