package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// ActionType is the closed set of browser operations an Intent can name.
type ActionType string

const (
	ActionNavigate   ActionType = "navigate"
	ActionClick      ActionType = "click"
	ActionTypeText   ActionType = "type"
	ActionScroll     ActionType = "scroll"
	ActionSearch     ActionType = "search"
	ActionExtract    ActionType = "extract"
	ActionObserve    ActionType = "observe"
	ActionWait       ActionType = "wait"
	ActionScreenshot ActionType = "screenshot"
	ActionUnknown    ActionType = "unknown"
)

// UnknownIntentConfidence is the confidence reported when a transcript could not be parsed.
const UnknownIntentConfidence = 0.1

var validActions = map[ActionType]struct{}{
	ActionNavigate:   {},
	ActionClick:      {},
	ActionTypeText:   {},
	ActionScroll:     {},
	ActionSearch:     {},
	ActionExtract:    {},
	ActionObserve:    {},
	ActionWait:       {},
	ActionScreenshot: {},
	ActionUnknown:    {},
}

// Valid reports whether a is a member of the closed action set.
func (a ActionType) Valid() bool {
	_, ok := validActions[a]
	return ok
}

// Intent is a structured, validated description of one browser operation
// derived from a user utterance.
type Intent struct {
	Action               ActionType     `json:"action"`
	Target               string         `json:"target,omitempty"`
	Value                string         `json:"value,omitempty"`
	Parameters           map[string]any `json:"parameters,omitempty"`
	Confidence           float64        `json:"confidence"`
	RequiresConfirmation bool           `json:"requiresConfirmation"`
}

// UnknownIntent is the degraded result of a failed parse.
func UnknownIntent() Intent {
	return Intent{Action: ActionUnknown, Confidence: UnknownIntentConfidence}
}

// Validate checks the intent against the schema: a known action and a
// confidence within [0, 1].
func (i Intent) Validate() error {
	if !i.Action.Valid() {
		return fmt.Errorf("%w: unsupported action %q", ErrInvalidIntent, i.Action)
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of range [0,1]", ErrInvalidIntent, i.Confidence)
	}
	return nil
}

// CheckContract verifies the per-action input contract. It returns an
// *ActionError with code MissingParameter or UnknownAction, or nil.
func (i Intent) CheckContract() *ActionError {
	switch i.Action {
	case ActionNavigate:
		if i.Value == "" && i.Target == "" {
			return NewActionError(CodeMissingParameter, "URL is required for navigation")
		}
	case ActionClick:
		if i.Target == "" {
			return NewActionError(CodeMissingParameter, "target is required for click action")
		}
	case ActionTypeText:
		if i.Target == "" || i.Value == "" {
			return NewActionError(CodeMissingParameter, "target and value are required for type action")
		}
	case ActionSearch:
		if i.Value == "" {
			return NewActionError(CodeMissingParameter, "search query is required")
		}
	case ActionScroll, ActionExtract, ActionObserve, ActionWait, ActionScreenshot:
	default:
		return NewActionError(CodeUnknownAction, fmt.Sprintf("unknown action: %s", i.Action))
	}
	return nil
}

// Clone returns a deep copy so the caller's parameters map can't alias the copy.
func (i Intent) Clone() Intent {
	c := i
	if i.Parameters != nil {
		c.Parameters = make(map[string]any, len(i.Parameters))
		maps.Copy(c.Parameters, i.Parameters)
	}
	return c
}

// Param returns a string parameter, or "" when it's absent or not a string.
func (i Intent) Param(key string) string {
	if i.Parameters == nil {
		return ""
	}
	s, _ := i.Parameters[key].(string)
	return s
}

// Describe renders the intent as "action on target" for prompts and log lines.
func (i Intent) Describe() string {
	if strings.TrimSpace(i.Target) == "" {
		return string(i.Action)
	}
	return fmt.Sprintf("%s on %s", i.Action, i.Target)
}

// ParseIntentJSON decodes and validates an intent from a model reply or request body.
func ParseIntentJSON(data []byte) (Intent, error) {
	var in Intent
	if err := json.Unmarshal(data, &in); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	in.Action = ActionType(strings.ToLower(strings.TrimSpace(string(in.Action))))
	if err := in.Validate(); err != nil {
		return Intent{}, err
	}
	return in, nil
}
