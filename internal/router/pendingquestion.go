package router

import "sync"

// PendingQuestion is one sub-question of a structured ask-user request.
type PendingQuestion struct {
	ID          string
	Prompt      string
	MultiSelect bool
	Options     []string
}

// pendingSet tracks one in-flight structured-question request: its full
// question list and the answers captured so far.
type pendingSet struct {
	sessionID string
	questions []PendingQuestion
	answers   map[string]any
}

func (p *pendingSet) complete() bool {
	for _, q := range p.questions {
		if _, ok := p.answers[q.ID]; !ok {
			return false
		}
	}
	return true
}

// PendingQuestionAggregator replaces the "ad-hoc memoisation map keyed by
// composite strings" pattern (spec.md §9 REDESIGN FLAG) with a value type
// whose own methods enforce the completion rule: answers are recorded per
// request id (RecordAnswer, RecordAnswers) and TryFinalize releases them
// only once every question id has an answer, so no composite
// `${requestId}:${questionId}` key is ever built.
type PendingQuestionAggregator struct {
	mu      sync.Mutex
	pending map[string]*pendingSet // requestID -> in-flight set
}

// NewPendingQuestionAggregator creates an empty aggregator.
func NewPendingQuestionAggregator() *PendingQuestionAggregator {
	return &PendingQuestionAggregator{pending: make(map[string]*pendingSet)}
}

// Register begins tracking a new structured-question request.
func (a *PendingQuestionAggregator) Register(requestID, sessionID string, questions []PendingQuestion) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[requestID] = &pendingSet{
		sessionID: sessionID,
		questions: questions,
		answers:   make(map[string]any),
	}
}

// RecordAnswer captures one question's answer. Returns false if requestID
// is not a tracked pending set (e.g. the session already ended).
func (a *PendingQuestionAggregator) RecordAnswer(requestID, questionID string, answer any) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.pending[requestID]
	if !ok {
		return false
	}
	set.answers[questionID] = answer
	return true
}

// RecordAnswers is the bulk form used when an adapter call supplies every
// answer at once (spec.md §4.5: "the adapter collects answers (possibly
// across several user interactions)").
func (a *PendingQuestionAggregator) RecordAnswers(requestID string, answers map[string]any) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.pending[requestID]
	if !ok {
		return false
	}
	for k, v := range answers {
		set.answers[k] = v
	}
	return true
}

// TryFinalize returns the captured answers and removes the pending set,
// only once every question has an answer. The second return value is
// false (and the map is left tracked) if the set is not yet complete.
func (a *PendingQuestionAggregator) TryFinalize(requestID string) (map[string]any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.pending[requestID]
	if !ok || !set.complete() {
		return nil, false
	}
	delete(a.pending, requestID)
	return set.answers, true
}

// Cancel drops a pending set without finalizing it, used on session end
// (spec.md §4.5: "Explicit session end cancels all pending requests").
func (a *PendingQuestionAggregator) Cancel(requestID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, requestID)
}

// CancelSession drops every pending set belonging to sessionID.
func (a *PendingQuestionAggregator) CancelSession(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, set := range a.pending {
		if set.sessionID == sessionID {
			delete(a.pending, id)
		}
	}
}

// SessionFor returns the session id a pending request belongs to.
func (a *PendingQuestionAggregator) SessionFor(requestID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.pending[requestID]
	if !ok {
		return "", false
	}
	return set.sessionID, true
}
