package model

import (
	"encoding/json"
	"time"
)

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// ConversationTurn is one message in a session's history.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"-"`
}

func (t ConversationTurn) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Role      Role   `json:"role"`
		Content   string `json:"content"`
		Timestamp int64  `json:"timestamp"`
	}{t.Role, t.Content, t.Timestamp.UnixMilli()})
}

// SessionContext is the read view of a session's memory.
type SessionContext struct {
	SessionID           string             `json:"sessionId"`
	ConversationHistory []ConversationTurn `json:"conversationHistory"`
	LastAction          *BrowserAction     `json:"lastAction,omitempty"`
	RecentActions       []BrowserAction    `json:"recentActions,omitempty"`
	CurrentURL          string             `json:"currentUrl,omitempty"`
	LiveViewURL         string             `json:"liveViewUrl,omitempty"`
}

// SessionInfo describes a session with a live browser.
type SessionInfo struct {
	SessionID   string    `json:"sessionId"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	LiveViewURL string    `json:"liveViewUrl,omitempty"`
}

// NewSessionContext returns an empty context for the session.
func NewSessionContext(sessionID string) *SessionContext {
	return &SessionContext{SessionID: sessionID, ConversationHistory: []ConversationTurn{}}
}

// AddAction appends a to the recent actions and makes it the last action.
// A non-empty pageURL becomes the current url.
func (c *SessionContext) AddAction(a BrowserAction, pageURL string) {
	c.RecentActions = append(c.RecentActions, a)
	last := a
	c.LastAction = &last
	if pageURL != "" {
		c.CurrentURL = pageURL
	}
}

// RecentTurns returns at most n of the latest turns, oldest first.
func (c *SessionContext) RecentTurns(n int) []ConversationTurn {
	if c == nil || n <= 0 {
		return nil
	}
	if len(c.ConversationHistory) <= n {
		return c.ConversationHistory
	}
	return c.ConversationHistory[len(c.ConversationHistory)-n:]
}
