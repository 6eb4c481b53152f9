// Package rpchub is the RPC Hub component (SPEC_FULL.md §4.4): a
// connection-oriented server on a process-local named channel (a Unix
// domain socket at a fixed path), framing newline-delimited JSON objects
// to and from connected runners.
//
// The type-discriminated frame design follows the teacher's
// internal/ws/protocol.go Envelope pattern, narrowed from the full
// relay/browser/wing three-party protocol down to the daemon/runner frame
// set spec.md §6 names. Socket lifecycle (stale-path removal, Listen,
// graceful Shutdown) is grounded on the teacher's
// internal/transport/server.go, generalized from net/http's request/response
// cycle to a long-lived bidirectional NDJSON stream per connection.
package rpchub

import "encoding/json"

// FrameType discriminates every frame the Hub sends or receives
// (spec.md §6).
type FrameType string

const (
	FrameSessionStart        FrameType = "session_start"
	FrameSessionEnd          FrameType = "session_end"
	FrameTitleUpdate         FrameType = "title_update"
	FramePTYOutput           FrameType = "pty_output"
	FramePermissionRequest   FrameType = "permission_request"
	FramePermissionResponse  FrameType = "permission_response"
	FrameInput               FrameType = "input"
)

// Envelope is the type-discriminator view of a frame. decodeFrame does not
// use it: every frame is decoded in one pass through rawEnvelope, and
// nothing in this package fills Data.
type Envelope struct {
	Type FrameType       `json:"type"`
	Data json.RawMessage `json:"-"`
}

// rawEnvelope is the wire shape: Type plus every possible field, all
// optional. Decoding into one flat struct avoids a second unmarshal pass
// per frame type.
type rawEnvelope struct {
	Type FrameType `json:"type"`

	// session_start
	ID        string   `json:"id,omitempty"`
	ProjectDir string  `json:"projectDir,omitempty"`
	Cwd        string  `json:"cwd,omitempty"`
	Command    []string `json:"command,omitempty"`
	Name       string   `json:"name,omitempty"`
	JSONLFile  string   `json:"jsonlFile,omitempty"`
	PID        int      `json:"pid,omitempty"`

	// session_end
	SessionID string `json:"sessionId,omitempty"`

	// title_update
	Title string `json:"title,omitempty"`

	// pty_output
	Content    string `json:"content,omitempty"`
	IsThinking bool   `json:"isThinking,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`

	// permission_request
	RequestID string          `json:"requestId,omitempty"`
	ToolName  string          `json:"toolName,omitempty"`
	ToolInput json.RawMessage `json:"toolInput,omitempty"`

	// permission_response
	Decision *Decision `json:"decision,omitempty"`

	// input
	Text string `json:"text,omitempty"`
}

// Decision is the runner-facing shape of a permission decision
// (spec.md §6).
type Decision struct {
	Behavior    string          `json:"behavior"` // "allow" | "deny"
	Message     string          `json:"message,omitempty"`
	UpdatedInput json.RawMessage `json:"updatedInput,omitempty"`
}

// SessionStart is the first frame from a runner.
type SessionStart struct {
	ID         string
	ProjectDir string
	Cwd        string
	Command    []string
	Name       string
	JSONLFile  string
	PID        int
}

// SessionEnd is the terminal frame from a runner.
type SessionEnd struct {
	SessionID string
}

// TitleUpdate reports an observed window-title change.
type TitleUpdate struct {
	SessionID string
	Title     string
}

// PTYOutput is the fallback-delivery frame for cleaned assistant text
// observed on the PTY stream (spec.md §4.4).
type PTYOutput struct {
	SessionID  string
	Content    string
	IsThinking bool
	Timestamp  string
}

// PermissionRequest is a runner's request for tool-use authorization.
type PermissionRequest struct {
	RequestID string
	SessionID string
	ToolName  string
	ToolInput json.RawMessage
}

// PermissionResponse carries the daemon's decision back to the runner.
type PermissionResponse struct {
	RequestID string
	Decision  Decision
}

// InputFrame is daemon→runner text to type into the agent's stdin.
type InputFrame struct {
	Text string
}

// decodeFrame parses one NDJSON line into its typed payload. The first
// return value is the FrameType for the caller's switch; the second is one
// of the typed structs above, or nil if the type is unrecognized.
func decodeFrame(line []byte) (FrameType, any, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(line, &raw); err != nil {
		return "", nil, err
	}
	switch raw.Type {
	case FrameSessionStart:
		return raw.Type, SessionStart{
			ID: raw.ID, ProjectDir: raw.ProjectDir, Cwd: raw.Cwd,
			Command: raw.Command, Name: raw.Name, JSONLFile: raw.JSONLFile, PID: raw.PID,
		}, nil
	case FrameSessionEnd:
		return raw.Type, SessionEnd{SessionID: raw.SessionID}, nil
	case FrameTitleUpdate:
		return raw.Type, TitleUpdate{SessionID: raw.SessionID, Title: raw.Title}, nil
	case FramePTYOutput:
		return raw.Type, PTYOutput{
			SessionID: raw.SessionID, Content: raw.Content,
			IsThinking: raw.IsThinking, Timestamp: raw.Timestamp,
		}, nil
	case FramePermissionRequest:
		return raw.Type, PermissionRequest{
			RequestID: raw.RequestID, SessionID: raw.SessionID,
			ToolName: raw.ToolName, ToolInput: raw.ToolInput,
		}, nil
	case FramePermissionResponse:
		dec := Decision{}
		if raw.Decision != nil {
			dec = *raw.Decision
		}
		return raw.Type, PermissionResponse{RequestID: raw.RequestID, Decision: dec}, nil
	case FrameInput:
		return raw.Type, InputFrame{Text: raw.Text}, nil
	default:
		return raw.Type, nil, nil
	}
}

// encodePermissionResponse serializes a daemon→runner permission_response
// frame.
func encodePermissionResponse(requestID string, decision Decision) ([]byte, error) {
	return json.Marshal(rawEnvelope{
		Type:      FramePermissionResponse,
		RequestID: requestID,
		Decision:  &decision,
	})
}

// encodeInput serializes a daemon→runner input frame.
func encodeInput(text string) ([]byte, error) {
	return json.Marshal(rawEnvelope{Type: FrameInput, Text: text})
}
