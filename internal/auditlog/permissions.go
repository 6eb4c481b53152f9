package auditlog

import (
	"fmt"
	"time"
)

// PermissionDecision is one recorded tool-use authorization outcome
// (spec.md §4.5).
type PermissionDecision struct {
	ID         int64
	SessionID  string
	RequestID  string
	ToolName   string
	Behavior   string
	Message    *string
	Yolo       bool
	DecidedAt  time.Time
}

// RecordDecision appends a permission decision. A duplicate requestID is
// rejected by the unique index on permission_decisions.request_id — the
// Router only ever delivers one decision per request id (spec.md §4.5).
func (l *Log) RecordDecision(sessionID, requestID, toolName, behavior string, message *string, yolo bool) error {
	_, err := l.db.Exec(
		`INSERT INTO permission_decisions (session_id, request_id, tool_name, behavior, message, yolo)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, requestID, toolName, behavior, message, yolo,
	)
	if err != nil {
		return fmt.Errorf("auditlog: record decision: %w", err)
	}
	return nil
}

// ListDecisions returns every permission decision for sessionID in
// chronological order.
func (l *Log) ListDecisions(sessionID string) ([]*PermissionDecision, error) {
	rows, err := l.db.Query(
		`SELECT id, session_id, request_id, tool_name, behavior, message, yolo, decided_at
		 FROM permission_decisions WHERE session_id = ? ORDER BY decided_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("auditlog: list decisions: %w", err)
	}
	defer rows.Close()

	var out []*PermissionDecision
	for rows.Next() {
		d := &PermissionDecision{}
		if err := rows.Scan(&d.ID, &d.SessionID, &d.RequestID, &d.ToolName, &d.Behavior, &d.Message, &d.Yolo, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("auditlog: scan decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
