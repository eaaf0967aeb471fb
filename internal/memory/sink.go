package memory

import (
	"context"
	"time"

	model "github.com/babelcloud/voicepilot/pkg/agent"
)

// ActionRecord is one executed action as stored in session memory.
type ActionRecord struct {
	SessionID string
	Action    model.ActionType
	// Outcome is the result payload on success and {error, errorCode} on failure.
	Outcome       any
	Succeeded     bool
	PageURL       string
	BrowserAction model.BrowserAction
	Timestamp     time.Time
}

// NewActionRecord captures a terminal action for sessionID.
func NewActionRecord(sessionID string, a *model.BrowserAction, pageURL string) ActionRecord {
	return ActionRecord{
		SessionID:     sessionID,
		Action:        a.Intent.Action,
		Outcome:       a.Outcome(),
		Succeeded:     a.Succeeded(),
		PageURL:       pageURL,
		BrowserAction: a.Snapshot(),
		Timestamp:     time.Now(),
	}
}

// Sink persists session history: executed actions and conversation turns.
type Sink interface {
	RecordAction(ctx context.Context, rec ActionRecord) error
	RecordTurn(ctx context.Context, sessionID string, role model.Role, content string) error
	Context(ctx context.Context, sessionID string) (*model.SessionContext, error)
}

// Forgetter is implemented by sinks whose history lives in the process. An
// explicitly closed session's history is dropped from them.
type Forgetter interface {
	Forget(sessionID string)
}

// Noop is the sink used when no memory service is configured.
type Noop struct{}

var _ Sink = Noop{}

func (Noop) RecordAction(context.Context, ActionRecord) error { return nil }

func (Noop) RecordTurn(context.Context, string, model.Role, string) error { return nil }

func (Noop) Context(_ context.Context, sessionID string) (*model.SessionContext, error) {
	return model.NewSessionContext(sessionID), nil
}
