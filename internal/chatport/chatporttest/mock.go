// Package chatporttest provides a testify mock of chatport.Port, in the
// style of the teacher's internal/mocks/interfaces/PermissionChecker.go
// (mock.Mock embedding, Called(...) dispatch), hand-adapted to the
// chatport.Port surface rather than mockery-generated.
package chatporttest

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/sleepcode/relayd/internal/chatport"
)

// Port is a mock implementation of chatport.Port.
type Port struct {
	mock.Mock
}

func New(t interface {
	mock.TestingT
	Cleanup(func())
}) *Port {
	m := &Port{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Port) SessionStart(sessionID string) { m.Called(sessionID) }
func (m *Port) SessionEnd(sessionID string)   { m.Called(sessionID) }
func (m *Port) NameUpdate(sessionID, name string)       { m.Called(sessionID, name) }
func (m *Port) StatusChange(sessionID, status string)   { m.Called(sessionID, status) }
func (m *Port) TitleChange(sessionID, title string)     { m.Called(sessionID, title) }
func (m *Port) Message(sessionID, role, text string)    { m.Called(sessionID, role, text) }
func (m *Port) Todos(sessionID string, todos json.RawMessage) { m.Called(sessionID, todos) }

func (m *Port) ToolCall(sessionID, callID, toolName string, input json.RawMessage) {
	m.Called(sessionID, callID, toolName, input)
}

func (m *Port) ToolResult(sessionID, callID, text string, isError bool) {
	m.Called(sessionID, callID, text, isError)
}

func (m *Port) PlanModeChange(sessionID string, active bool) { m.Called(sessionID, active) }

func (m *Port) PermissionRequest(ctx context.Context, sessionID, requestID, toolName string, input json.RawMessage) (chatport.Decision, error) {
	ret := m.Called(ctx, sessionID, requestID, toolName, input)
	return ret.Get(0).(chatport.Decision), ret.Error(1)
}

func (m *Port) StructuredQuestion(ctx context.Context, sessionID, requestID string, questions []chatport.Question) (map[string]any, error) {
	ret := m.Called(ctx, sessionID, requestID, questions)
	var answers map[string]any
	if ret.Get(0) != nil {
		answers = ret.Get(0).(map[string]any)
	}
	return answers, ret.Error(1)
}

func (m *Port) ThreadFor(sessionID string) (string, bool) {
	ret := m.Called(sessionID)
	return ret.String(0), ret.Bool(1)
}

func (m *Port) Revive(sessionID, threadID string) bool {
	ret := m.Called(sessionID, threadID)
	return ret.Bool(0)
}

func (m *Port) Notify(sessionID, text string) { m.Called(sessionID, text) }
