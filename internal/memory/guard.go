package memory

import (
	"context"

	model "github.com/babelcloud/voicepilot/pkg/agent"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

// Guard wraps a Sink so that its failures are logged and never reach the
// caller. Context failures yield an empty context.
type Guard struct {
	sink Sink
	log  *logger.Logger
	name string
}

var _ Sink = (*Guard)(nil)

func NewGuard(sink Sink, name string, log *logger.Logger) *Guard {
	if sink == nil {
		sink, name = Noop{}, "none"
	}
	return &Guard{sink: sink, log: log, name: name}
}

// Backend names the wrapped sink.
func (g *Guard) Backend() string { return g.name }

// Available reports whether records are actually persisted.
func (g *Guard) Available() bool {
	_, noop := g.sink.(Noop)
	return !noop
}

func (g *Guard) RecordAction(ctx context.Context, rec ActionRecord) error {
	if err := g.sink.RecordAction(ctx, rec); err != nil {
		g.log.Warn("Failed to record %s action for session %s in %s memory: %v", rec.Action, rec.SessionID, g.name, err)
	}
	return nil
}

func (g *Guard) RecordTurn(ctx context.Context, sessionID string, role model.Role, content string) error {
	if err := g.sink.RecordTurn(ctx, sessionID, role, content); err != nil {
		g.log.Warn("Failed to record %s turn for session %s in %s memory: %v", role, sessionID, g.name, err)
	}
	return nil
}

func (g *Guard) Context(ctx context.Context, sessionID string) (*model.SessionContext, error) {
	sc, err := g.sink.Context(ctx, sessionID)
	if err != nil {
		g.log.Warn("Failed to load context for session %s from %s memory: %v", sessionID, g.name, err)
		return model.NewSessionContext(sessionID), nil
	}
	if sc == nil {
		return model.NewSessionContext(sessionID), nil
	}
	return sc, nil
}

// Forget forwards to the wrapped sink when it keeps process-local history.
func (g *Guard) Forget(sessionID string) {
	if f, ok := g.sink.(Forgetter); ok {
		f.Forget(sessionID)
	}
}
