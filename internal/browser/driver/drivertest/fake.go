// Package drivertest provides in-memory pages and drivers for tests.
package drivertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/babelcloud/voicepilot/internal/browser/driver"
)

// Call is one recorded capability invocation.
type Call struct {
	Method string
	Args   []any
}

// FakePage records every call and returns scripted errors per method.
type FakePage struct {
	mu     sync.Mutex
	calls  []Call
	errs   map[string]error
	closed bool
	url    string

	ScreenshotBytes []byte
	ExtractResult   any
	Observations    []driver.Observation
	LiveView        string
	// Block, when set, is waited on at the start of every call.
	Block chan struct{}
	// Started receives the method name of every call before Block is waited on.
	Started chan string
}

var _ driver.Page = (*FakePage)(nil)

func NewFakePage() *FakePage {
	return &FakePage{errs: map[string]error{}, url: "about:blank", ScreenshotBytes: []byte("png")}
}

// FailOn makes method return err until cleared with a nil err.
func (p *FakePage) FailOn(method string, err error) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.errs, method)
	} else {
		p.errs[method] = err
	}
	return p
}

func (p *FakePage) record(method string, args ...any) error {
	if p.Started != nil {
		p.Started <- method
	}
	if p.Block != nil {
		<-p.Block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Method: method, Args: args})
	if p.closed {
		return driver.ErrPageClosed
	}
	return p.errs[method]
}

// Calls returns a copy of the recorded calls.
func (p *FakePage) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Methods returns the recorded method names in order.
func (p *FakePage) Methods() []string {
	var out []string
	for _, c := range p.Calls() {
		out = append(out, c.Method)
	}
	return out
}

func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePage) Goto(_ context.Context, url string) error {
	if err := p.record("Goto", url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *FakePage) Click(_ context.Context, selector string) error {
	return p.record("Click", selector)
}

func (p *FakePage) Fill(_ context.Context, selector, value string) error {
	return p.record("Fill", selector, value)
}

func (p *FakePage) ScrollIntoView(_ context.Context, selector string) error {
	return p.record("ScrollIntoView", selector)
}

func (p *FakePage) ScrollBy(_ context.Context, dx, dy int) error {
	return p.record("ScrollBy", dx, dy)
}

func (p *FakePage) WaitForSelector(_ context.Context, selector string, timeout time.Duration) error {
	return p.record("WaitForSelector", selector, timeout)
}

func (p *FakePage) WaitForTimeout(_ context.Context, d time.Duration) error {
	return p.record("WaitForTimeout", d)
}

func (p *FakePage) Screenshot(_ context.Context, fullPage bool) ([]byte, error) {
	if err := p.record("Screenshot", fullPage); err != nil {
		return nil, err
	}
	return p.ScreenshotBytes, nil
}

func (p *FakePage) Act(_ context.Context, instruction string) error {
	return p.record("Act", instruction)
}

func (p *FakePage) Extract(_ context.Context, instruction string, schema map[string]any) (any, error) {
	if err := p.record("Extract", instruction, schema); err != nil {
		return nil, err
	}
	return p.ExtractResult, nil
}

func (p *FakePage) Observe(_ context.Context, instruction string) ([]driver.Observation, error) {
	if err := p.record("Observe", instruction); err != nil {
		return nil, err
	}
	return p.Observations, nil
}

func (p *FakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *FakePage) LiveViewURL() string { return p.LiveView }

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// FakeLauncher hands out FakePages and counts launches per session.
type FakeLauncher struct {
	mu       sync.Mutex
	Pages    map[string]*FakePage
	Launches map[string]int
	// Err fails every launch when set.
	Err error
	// Delay is slept before each launch completes.
	Delay time.Duration
	// NewPage customizes the page for a session.
	NewPage func(sessionID string) *FakePage
}

func NewFakeLauncher() *FakeLauncher {
	return &FakeLauncher{Pages: map[string]*FakePage{}, Launches: map[string]int{}}
}

func (l *FakeLauncher) Launch(ctx context.Context, sessionID string) (driver.Page, error) {
	if l.Delay > 0 {
		select {
		case <-time.After(l.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Launches[sessionID]++
	if l.Err != nil {
		return nil, fmt.Errorf("launch %s: %w", sessionID, l.Err)
	}
	var p *FakePage
	if l.NewPage != nil {
		p = l.NewPage(sessionID)
	} else {
		p = NewFakePage()
	}
	l.Pages[sessionID] = p
	return p, nil
}

// LaunchCount returns how many times sessionID was launched.
func (l *FakeLauncher) LaunchCount(sessionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Launches[sessionID]
}

// Page returns the last page launched for sessionID.
func (l *FakeLauncher) Page(sessionID string) *FakePage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Pages[sessionID]
}

// FakeDriver is an engine Driver backed by static HTML and elements.
type FakeDriver struct {
	mu       sync.Mutex
	HTML     string
	PageURL  string
	PageName string
	LiveView string
	Items    []driver.Element
	Calls    []Call
	Err      error
}

var _ driver.Driver = (*FakeDriver)(nil)

func (d *FakeDriver) rec(method string, args ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, Call{Method: method, Args: args})
	return d.Err
}

func (d *FakeDriver) Goto(_ context.Context, url string) error { return d.rec("Goto", url) }
func (d *FakeDriver) Click(_ context.Context, s string) error   { return d.rec("Click", s) }
func (d *FakeDriver) Fill(_ context.Context, s, v string) error { return d.rec("Fill", s, v) }
func (d *FakeDriver) ScrollIntoView(_ context.Context, s string) error {
	return d.rec("ScrollIntoView", s)
}
func (d *FakeDriver) ScrollBy(_ context.Context, dx, dy int) error { return d.rec("ScrollBy", dx, dy) }
func (d *FakeDriver) WaitForSelector(_ context.Context, s string, t time.Duration) error {
	return d.rec("WaitForSelector", s, t)
}
func (d *FakeDriver) Screenshot(_ context.Context, full bool) ([]byte, error) {
	return []byte("png"), d.rec("Screenshot", full)
}
func (d *FakeDriver) Content(context.Context) (string, error) { return d.HTML, d.Err }
func (d *FakeDriver) Title(context.Context) (string, error)   { return d.PageName, d.Err }
func (d *FakeDriver) Elements(context.Context) ([]driver.Element, error) {
	return d.Items, d.Err
}
func (d *FakeDriver) URL() string         { return d.PageURL }
func (d *FakeDriver) LiveViewURL() string { return d.LiveView }
func (d *FakeDriver) Close() error        { return d.rec("Close") }

// Recorded returns the method names called on the driver.
func (d *FakeDriver) Recorded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, c := range d.Calls {
		out = append(out, c.Method)
	}
	return out
}
