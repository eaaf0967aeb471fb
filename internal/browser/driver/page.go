package driver

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPageClosed is returned by every call on a page that has been closed.
	ErrPageClosed = errors.New("page closed")
	// ErrNoModel is returned by natural-language calls when no LLM is configured.
	ErrNoModel = errors.New("natural-language automation unavailable: no llm provider configured")
	// ErrNotPossible is returned when the model reports an instruction can't be carried out.
	ErrNotPossible = errors.New("instruction not possible on this page")
)

// Page is the capability set the executor drives. The deterministic calls
// address elements by CSS selector; Act, Extract and Observe take a
// natural-language instruction.
type Page interface {
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	ScrollIntoView(ctx context.Context, selector string) error
	ScrollBy(ctx context.Context, dx, dy int) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	WaitForTimeout(ctx context.Context, d time.Duration) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)

	Act(ctx context.Context, instruction string) error
	Extract(ctx context.Context, instruction string, schema map[string]any) (any, error)
	Observe(ctx context.Context, instruction string) ([]Observation, error)

	URL() string
	// LiveViewURL is where a person can watch the page, or "" when the
	// browser offers no live view.
	LiveViewURL() string
	Close() error
}

// Driver is the engine-specific part of a page: deterministic calls plus the
// introspection the natural-language layer needs.
type Driver interface {
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	ScrollIntoView(ctx context.Context, selector string) error
	ScrollBy(ctx context.Context, dx, dy int) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)

	Content(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Elements(ctx context.Context) ([]Element, error)

	URL() string
	LiveViewURL() string
	Close() error
}

// Engine opens one isolated browser page per session.
type Engine interface {
	Name() string
	Open(ctx context.Context, sessionID string) (Driver, error)
	Close() error
}

// Observation is one actionable thing the model found on the page.
type Observation struct {
	Description string `json:"description"`
	Selector    string `json:"selector,omitempty"`
	Method      string `json:"method,omitempty"`
}

// Recoverable reports whether a deterministic failure may be retried through
// natural-language fallback. Closed pages, an expired caller context and a
// missing model are final.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrPageClosed),
		errors.Is(err, ErrNoModel),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
