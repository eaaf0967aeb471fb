// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/babelcloud/voicepilot/internal/llm"
)

// Fake returns scripted replies in order; the last one repeats.
type Fake struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	Calls   []llm.Request
}

var _ llm.Provider = (*Fake)(nil)

func New(replies ...string) *Fake {
	return &Fake{Replies: replies}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, req)
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Replies) == 0 {
		return "", nil
	}
	reply := f.Replies[0]
	if len(f.Replies) > 1 {
		f.Replies = f.Replies[1:]
	}
	return reply, nil
}

// CallCount is safe to use while other goroutines complete.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
