package model

// SubmitRequest asks for an intent to be gated and, if allowed, executed.
type SubmitRequest struct {
	Intent    *Intent `json:"intent"`
	SessionID string  `json:"sessionId"`
}

// SubmitResult is either a confirmation request or an executed action.
type SubmitResult struct {
	RequiresConfirmation bool           `json:"requiresConfirmation,omitempty"`
	ConfirmationPrompt   string         `json:"confirmationPrompt,omitempty"`
	Intent               *Intent        `json:"intent,omitempty"`
	Action               *BrowserAction `json:"action,omitempty"`
	Summary              string         `json:"summary,omitempty"`
}

// ConfirmRequest resolves a held intent. Confirmed is required.
type ConfirmRequest struct {
	Intent    *Intent `json:"intent"`
	SessionID string  `json:"sessionId"`
	Confirmed *bool   `json:"confirmed"`
}

// ConfirmResult is either a cancellation or an executed action.
type ConfirmResult struct {
	Cancelled bool           `json:"cancelled,omitempty"`
	Action    *BrowserAction `json:"action,omitempty"`
	Summary   string         `json:"summary,omitempty"`
}

type CloseResult struct {
	SessionClosed bool `json:"sessionClosed"`
}

type SessionList struct {
	ActiveSessions []string `json:"activeSessions"`
}

// ParseRequest carries a transcript to turn into an intent.
type ParseRequest struct {
	Transcript string `json:"transcript"`
	SessionID  string `json:"sessionId,omitempty"`
}

// KeyStatus reports whether each credential is configured, never its value.
type KeyStatus map[string]string

const (
	KeySet    = "SET"
	KeyNotSet = "NOT SET"
)
