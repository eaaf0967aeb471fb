// Package assistant turns transcripts into intents and phrases confirmation
// prompts and action summaries with a language model.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/babelcloud/voicepilot/internal/llm"
	model "github.com/babelcloud/voicepilot/pkg/agent"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

const (
	contextTurns = 3
	// Keeps large extract payloads out of the summary prompt.
	maxResultChars = 2000
)

// Assistant is safe for concurrent use.
type Assistant struct {
	model llm.Provider
	log   *logger.Logger
}

// New builds an assistant. With a nil provider every call degrades to its
// fallback.
func New(provider llm.Provider, log *logger.Logger) *Assistant {
	if log == nil {
		log = logger.New()
	}
	return &Assistant{model: provider, log: log}
}

// Available reports whether a model is configured.
func (a *Assistant) Available() bool { return a.model != nil }

// ParseIntent never fails: any model or validation error yields
// model.UnknownIntent().
func (a *Assistant) ParseIntent(ctx context.Context, transcript string, sc *model.SessionContext) model.Intent {
	if a.model == nil {
		return model.UnknownIntent()
	}

	reply, err := a.model.Complete(ctx, llm.Request{
		System: parseSystemPrompt + contextPrompt(sc),
		Prompt: fmt.Sprintf("Parse this voice command into a structured intent: %q", transcript),
		JSON:   true,
	})
	if err != nil {
		a.log.Warn("Failed to parse intent: %v", err)
		return model.UnknownIntent()
	}
	raw, err := llm.ExtractJSON(reply)
	if err != nil {
		a.log.Warn("Failed to parse intent: %v", err)
		return model.UnknownIntent()
	}
	in, err := model.ParseIntentJSON([]byte(raw))
	if err != nil {
		a.log.Warn("Model returned an invalid intent: %v", err)
		return model.UnknownIntent()
	}
	return in
}

func contextPrompt(sc *model.SessionContext) string {
	if sc == nil {
		return ""
	}
	url := sc.CurrentURL
	if url == "" {
		url = "Unknown"
	}
	last := "None"
	if sc.LastAction != nil {
		if b, err := json.Marshal(sc.LastAction.Intent); err == nil {
			last = string(b)
		}
	}
	var turns []string
	for _, t := range sc.RecentTurns(contextTurns) {
		turns = append(turns, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}

	var b strings.Builder
	b.WriteString("\n\nSession context:\n")
	fmt.Fprintf(&b, "- Current URL: %s\n", url)
	fmt.Fprintf(&b, "- Last action: %s\n", last)
	fmt.Fprintf(&b, "- Conversation history:\n%s", strings.Join(turns, "\n"))
	return b.String()
}

// ConfirmationPrompt asks the model for a question to put to the user.
func (a *Assistant) ConfirmationPrompt(ctx context.Context, in model.Intent) (string, error) {
	if a.model == nil {
		return "", llm.ErrUnavailable
	}
	b, _ := json.Marshal(in)
	reply, err := a.model.Complete(ctx, llm.Request{
		System: confirmSystemPrompt,
		Prompt: "Generate a clear, concise confirmation prompt for this browser action: " + string(b),
		JSON:   true,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Prompt string `json:"prompt"`
	}
	if err := llm.DecodeJSON(reply, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Prompt), nil
}

// Summarize describes what happened. It falls back to a fixed sentence when
// the model is unavailable or misbehaves.
func (a *Assistant) Summarize(ctx context.Context, in model.Intent, action *model.BrowserAction) string {
	if a.model == nil || action == nil {
		return FallbackSummary(in, action)
	}

	ib, _ := json.Marshal(in)
	ob, _ := json.Marshal(action.Outcome())
	outcome := string(ob)
	if len(outcome) > maxResultChars {
		outcome = outcome[:maxResultChars] + "..."
	}
	reply, err := a.model.Complete(ctx, llm.Request{
		System: summarySystemPrompt,
		Prompt: fmt.Sprintf("Generate a brief summary of this action and its result: Action: %s, Status: %s, Result: %s", ib, action.Status, outcome),
		JSON:   true,
	})
	if err != nil {
		a.log.Warn("Failed to generate action summary: %v", err)
		return FallbackSummary(in, action)
	}
	var out struct {
		Summary string `json:"summary"`
	}
	if err := llm.DecodeJSON(reply, &out); err != nil || strings.TrimSpace(out.Summary) == "" {
		return FallbackSummary(in, action)
	}
	return strings.TrimSpace(out.Summary)
}

// FallbackSummary is "Completed <action>[ on <target>]", or the failed form
// with the error when the action did not succeed.
func FallbackSummary(in model.Intent, action *model.BrowserAction) string {
	subject := string(in.Action)
	if t := strings.TrimSpace(in.Target); t != "" {
		subject += " on " + t
	}
	if action != nil && action.Status == model.StatusFailed {
		return fmt.Sprintf("Failed %s: %s", subject, action.Error)
	}
	return "Completed " + subject
}
