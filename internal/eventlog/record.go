// Package eventlog decodes the structured records an agent session writes to
// its append-only JSONL log. The shape is a loose superset of what any given
// record actually carries — decoding tolerates unknown fields and unknown
// content-item types, consistent with the spec's requirement that malformed
// or unrecognized lines are skipped rather than treated as fatal.
//
// Grounded on the same "decode into a small struct, switch on type" idiom as
// the teacher's internal/agent/claude.go stream-event parser, generalized
// from a single event shape to the full record shape the relay daemon reads.
package eventlog

import (
	"encoding/json"
	"time"
)

// ContentItemType enumerates the content block shapes a message can carry.
type ContentItemType string

const (
	ContentText       ContentItemType = "text"
	ContentToolUse    ContentItemType = "tool_use"
	ContentToolResult ContentItemType = "tool_result"
)

// ContentItem is one element of a message's content array.
type ContentItem struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// rawContent accepts either a plain string or an array of ContentItem,
// matching the record subset described in spec.md §6.
type rawContent struct {
	text  string
	items []ContentItem
}

func (c *rawContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.text = s
		return nil
	}
	var items []ContentItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	c.items = items
	return nil
}

// Message is the `message` object inside a user/assistant record.
type Message struct {
	Role    string     `json:"role"`
	Content rawContent `json:"content"`
}

// Record is one line of the append-only event log.
type Record struct {
	Type      string          `json:"type"`
	Slug      string          `json:"slug,omitempty"`
	Todos     json.RawMessage `json:"todos,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	IsMeta    bool            `json:"isMeta,omitempty"`
	Subtype   string          `json:"subtype,omitempty"`
	Message   *Message        `json:"message,omitempty"`
}

// Parse decodes one JSONL line into a Record. A parse error means the line
// is malformed and the caller should skip it (spec.md §7: "Malformed
// event-log line ... Skip line; offset still advances").
func Parse(line []byte) (Record, error) {
	var r Record
	err := json.Unmarshal(line, &r)
	return r, err
}

// ParsedTimestamp returns the record's parsed timestamp and true, or the
// zero time and false if the record carries no timestamp or it doesn't
// parse as RFC3339.
func (r Record) ParsedTimestamp() (time.Time, bool) {
	if r.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// HasTodos reports whether the record carries a todos array (possibly empty).
func (r Record) HasTodos() bool {
	return len(r.Todos) > 0
}

// Text returns the plain-text content of the message, if Content is a bare
// string rather than an item array.
func (m Message) Text() (string, bool) {
	if m.Content.items == nil {
		return m.Content.text, true
	}
	return "", false
}

// Items returns the content-item array, if Content was an array rather than
// a bare string.
func (m Message) Items() ([]ContentItem, bool) {
	if m.Content.items == nil && m.Content.text == "" {
		return nil, false
	}
	if m.Content.items == nil {
		return nil, false
	}
	return m.Content.items, true
}

// JoinText concatenates all text-type content items, used to derive the
// textual body of a tool_result whose content is an item array rather than
// a bare string (spec.md §4.3: "textual content (joining text parts)").
func JoinText(content json.RawMessage) string {
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var items []ContentItem
	if err := json.Unmarshal(content, &items); err != nil {
		return ""
	}
	out := ""
	for _, it := range items {
		if it.Type == string(ContentText) {
			out += it.Text
		}
	}
	return out
}

// IsSyntheticSubtype reports whether the record is a meta or subtyped
// synthetic record that should never be surfaced as a user/assistant message
// (spec.md §4.3: "not a meta record, not a subtyped synthetic").
func (r Record) IsSyntheticSubtype() bool {
	return r.IsMeta || r.Subtype != ""
}
