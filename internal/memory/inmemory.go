package memory

import (
	"context"
	"sync"
	"time"

	model "github.com/babelcloud/voicepilot/pkg/agent"
)

type sessionHistory struct {
	turns      []model.ConversationTurn
	actions    []model.BrowserAction
	currentURL string
}

// InMemory keeps per-session history in process memory, trimming each
// session's turns and actions to the configured limit.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[string]*sessionHistory
	limit    int
}

var (
	_ Sink      = (*InMemory)(nil)
	_ Forgetter = (*InMemory)(nil)
)

func NewInMemory(limit int) *InMemory {
	return &InMemory{sessions: make(map[string]*sessionHistory), limit: limit}
}

func (m *InMemory) history(sessionID string) *sessionHistory {
	h, ok := m.sessions[sessionID]
	if !ok {
		h = &sessionHistory{}
		m.sessions[sessionID] = h
	}
	return h
}

func (m *InMemory) RecordAction(_ context.Context, rec ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.history(rec.SessionID)
	h.actions = append(h.actions, rec.BrowserAction)
	if m.limit > 0 && len(h.actions) > m.limit {
		h.actions = append([]model.BrowserAction(nil), h.actions[len(h.actions)-m.limit:]...)
	}
	if rec.PageURL != "" {
		h.currentURL = rec.PageURL
	}
	return nil
}

func (m *InMemory) RecordTurn(_ context.Context, sessionID string, role model.Role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.history(sessionID)
	h.turns = append(h.turns, model.ConversationTurn{Role: role, Content: content, Timestamp: time.Now()})
	if m.limit > 0 && len(h.turns) > m.limit {
		h.turns = append([]model.ConversationTurn(nil), h.turns[len(h.turns)-m.limit:]...)
	}
	return nil
}

func (m *InMemory) Context(_ context.Context, sessionID string) (*model.SessionContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc := model.NewSessionContext(sessionID)
	h, ok := m.sessions[sessionID]
	if !ok {
		return sc, nil
	}
	sc.ConversationHistory = append(sc.ConversationHistory, h.turns...)
	for i := range h.actions {
		sc.AddAction(h.actions[i].Snapshot(), "")
	}
	sc.CurrentURL = h.currentURL
	return sc, nil
}

// Forget drops everything stored for sessionID.
func (m *InMemory) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}
