package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionStatus is the lifecycle state of a BrowserAction.
type ActionStatus string

const (
	StatusPending ActionStatus = "pending"
	StatusRunning ActionStatus = "running"
	StatusSuccess ActionStatus = "success"
	StatusFailed  ActionStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s ActionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Strategy records which execution tier produced a successful action.
type Strategy string

const (
	StrategyDeterministic Strategy = "deterministic"
	StrategyFallback      Strategy = "fallback"
	StrategyAI            Strategy = "ai"
)

// ActionResult is the action-specific success payload.
type ActionResult map[string]any

// BrowserAction is one execution attempt of an Intent.
type BrowserAction struct {
	ID        string       `json:"id"`
	Intent    Intent       `json:"intent"`
	Status    ActionStatus `json:"status"`
	Timestamp time.Time    `json:"-"`
	Error     string       `json:"error,omitempty"`
	ErrorCode ErrorCode    `json:"errorCode,omitempty"`
	Result    ActionResult `json:"result,omitempty"`
	Strategy  Strategy     `json:"strategy,omitempty"`
}

// NewBrowserAction creates a pending action holding a copy of the intent.
func NewBrowserAction(in Intent) *BrowserAction {
	return &BrowserAction{
		ID:        "action_" + uuid.NewString(),
		Intent:    in.Clone(),
		Status:    StatusPending,
		Timestamp: time.Now(),
	}
}

// Start moves a pending action to running.
func (a *BrowserAction) Start() bool {
	if a.Status != StatusPending {
		return false
	}
	a.Status = StatusRunning
	return true
}

// Succeed finalizes the action with a result. A nil result is stored as an
// empty payload so a successful action always carries one.
func (a *BrowserAction) Succeed(result ActionResult, strategy Strategy) bool {
	if a.Status.Terminal() {
		return false
	}
	if result == nil {
		result = ActionResult{}
	}
	a.Status = StatusSuccess
	a.Result = result
	a.Strategy = strategy
	a.Error, a.ErrorCode = "", ""
	return true
}

// Fail finalizes the action with an error.
func (a *BrowserAction) Fail(err error) bool {
	if a.Status.Terminal() {
		return false
	}
	if err == nil {
		err = NewActionError(CodeAutomationFailed, "unspecified failure")
	}
	a.Status = StatusFailed
	a.Error = err.Error()
	a.ErrorCode = CodeOf(err)
	a.Result = nil
	a.Strategy = ""
	return true
}

// Succeeded reports a terminal success.
func (a *BrowserAction) Succeeded() bool {
	return a.Status == StatusSuccess
}

// Outcome returns the result on success or an {error} payload on failure.
func (a *BrowserAction) Outcome() any {
	if a.Succeeded() {
		return a.Result
	}
	return map[string]any{"error": a.Error, "errorCode": a.ErrorCode}
}

// Snapshot returns a copy safe to hand to other goroutines.
func (a *BrowserAction) Snapshot() BrowserAction {
	c := *a
	c.Intent = a.Intent.Clone()
	if a.Result != nil {
		c.Result = make(ActionResult, len(a.Result))
		for k, v := range a.Result {
			c.Result[k] = v
		}
	}
	return c
}

type browserActionJSON BrowserAction

// MarshalJSON renders the timestamp as epoch milliseconds.
func (a BrowserAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		browserActionJSON
		Timestamp int64 `json:"timestamp"`
	}{browserActionJSON(a), a.Timestamp.UnixMilli()})
}

func (a *BrowserAction) UnmarshalJSON(data []byte) error {
	aux := struct {
		*browserActionJSON
		Timestamp int64 `json:"timestamp"`
	}{browserActionJSON: (*browserActionJSON)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.Timestamp = time.UnixMilli(aux.Timestamp)
	return nil
}
