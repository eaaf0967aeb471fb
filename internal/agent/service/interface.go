package service

import (
	"context"

	model "github.com/babelcloud/voicepilot/pkg/agent"
)

// IntentParser turns a transcript into an intent. It never fails; an
// unparseable command yields model.UnknownIntent().
type IntentParser interface {
	ParseIntent(ctx context.Context, transcript string, sc *model.SessionContext) model.Intent
}

// Summarizer describes an executed action for the user.
type Summarizer interface {
	Summarize(ctx context.Context, in model.Intent, action *model.BrowserAction) string
}
