// Package confirm decides whether an intent may run now or must wait for
// the user to confirm it.
package confirm

import (
	"context"
	"strings"

	model "github.com/babelcloud/voicepilot/pkg/agent"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

// Prompter phrases the question put to the user before a sensitive action.
type Prompter interface {
	ConfirmationPrompt(ctx context.Context, in model.Intent) (string, error)
}

// Decision is the gate's verdict for one intent.
type Decision struct {
	MustConfirm bool
	// Prompt is set, and never blank, when MustConfirm is true.
	Prompt string
}

// Gate holds intents flagged requiresConfirmation. It has no side effects on
// sessions or memory.
type Gate struct {
	prompter Prompter
	log      *logger.Logger
}

// NewGate builds a gate. A nil prompter always yields the fallback prompt.
func NewGate(prompter Prompter, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.New()
	}
	return &Gate{prompter: prompter, log: log}
}

// Evaluate never fails: a prompter error or blank reply falls back to
// FallbackPrompt.
func (g *Gate) Evaluate(ctx context.Context, in model.Intent) Decision {
	if !in.RequiresConfirmation {
		return Decision{}
	}
	if g.prompter == nil {
		return Decision{MustConfirm: true, Prompt: FallbackPrompt(in)}
	}

	prompt, err := g.prompter.ConfirmationPrompt(ctx, in)
	if err != nil {
		g.log.Warn("Failed to generate confirmation prompt for %s: %v", in.Action, err)
		return Decision{MustConfirm: true, Prompt: FallbackPrompt(in)}
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Decision{MustConfirm: true, Prompt: FallbackPrompt(in)}
	}
	return Decision{MustConfirm: true, Prompt: prompt}
}

// FallbackPrompt is "Are you sure you want to <action> on <target>?", with
// the target clause dropped when the intent has none.
func FallbackPrompt(in model.Intent) string {
	var b strings.Builder
	b.WriteString("Are you sure you want to ")
	b.WriteString(string(in.Action))
	if t := strings.TrimSpace(in.Target); t != "" {
		b.WriteString(" on ")
		b.WriteString(t)
	}
	b.WriteString("?")
	return b.String()
}
