package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/voicepilot/internal/browser/driver"
	"github.com/babelcloud/voicepilot/internal/browser/driver/drivertest"
	"github.com/babelcloud/voicepilot/internal/browser/service"
	"github.com/babelcloud/voicepilot/internal/memory"
	model "github.com/babelcloud/voicepilot/pkg/agent"
)

type recordingObserver struct {
	mu      sync.Mutex
	updates []model.BrowserAction
}

func (o *recordingObserver) ActionUpdated(_ string, a model.BrowserAction) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates = append(o.updates, a)
}

func (o *recordingObserver) statuses(id string) []model.ActionStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []model.ActionStatus
	for _, a := range o.updates {
		if a.ID == id {
			out = append(out, a.Status)
		}
	}
	return out
}

type failingSink struct {
	memory.Noop
	mu    sync.Mutex
	calls int
}

func (s *failingSink) RecordAction(context.Context, memory.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("memory service down")
}

func newExecutor(t *testing.T, page *drivertest.FakePage, opts service.ExecutorOptions) *service.Executor {
	t.Helper()
	l := drivertest.NewFakeLauncher()
	l.NewPage = func(string) *drivertest.FakePage { return page }
	e, err := service.NewExecutor(context.Background(), "s1", l, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestExecuteActions(t *testing.T) {
	boom := errors.New("element not found")

	tests := []struct {
		name     string
		intent   model.Intent
		setup    func(p *drivertest.FakePage)
		status   model.ActionStatus
		code     model.ErrorCode
		strategy model.Strategy
		methods  []string
		check    func(t *testing.T, a *model.BrowserAction, p *drivertest.FakePage)
	}{
		{
			name:     "navigate normalizes bare host",
			intent:   model.Intent{Action: model.ActionNavigate, Value: "example.com"},
			status:   model.StatusSuccess,
			strategy: model.StrategyDeterministic,
			methods:  []string{"Goto"},
			check: func(t *testing.T, a *model.BrowserAction, p *drivertest.FakePage) {
				assert.Equal(t, "https://example.com", a.Result["url"])
				assert.Equal(t, "https://example.com", p.URL())
			},
		},
		{
			name:     "navigate uses target when value is empty",
			intent:   model.Intent{Action: model.ActionNavigate, Target: "https://go.dev"},
			status:   model.StatusSuccess,
			strategy: model.StrategyDeterministic,
			methods:  []string{"Goto"},
		},
		{
			name:     "navigate falls back to instruction",
			intent:   model.Intent{Action: model.ActionNavigate, Value: "https://example.com"},
			setup:    func(p *drivertest.FakePage) { p.FailOn("Goto", boom) },
			status:   model.StatusSuccess,
			strategy: model.StrategyFallback,
			methods:  []string{"Goto", "Act"},
			check: func(t *testing.T, _ *model.BrowserAction, p *drivertest.FakePage) {
				calls := p.Calls()
				assert.Equal(t, "navigate to https://example.com", calls[1].Args[0])
			},
		},
		{
			name:   "both tiers failing",
			intent: model.Intent{Action: model.ActionClick, Target: "#missing"},
			setup: func(p *drivertest.FakePage) {
				p.FailOn("Click", boom).FailOn("Act", driver.ErrNotPossible)
			},
			status:  model.StatusFailed,
			code:    model.CodeAutomationFailed,
			methods: []string{"Click", "Act"},
			check: func(t *testing.T, a *model.BrowserAction, _ *drivertest.FakePage) {
				assert.Contains(t, a.Error, "element not found")
				assert.Contains(t, a.Error, "fallback")
			},
		},
		{
			name:    "closed page skips fallback",
			intent:  model.Intent{Action: model.ActionClick, Target: "#go"},
			setup:   func(p *drivertest.FakePage) { p.FailOn("Click", driver.ErrPageClosed) },
			status:  model.StatusFailed,
			code:    model.CodeAutomationFailed,
			methods: []string{"Click"},
		},
		{
			name:     "click",
			intent:   model.Intent{Action: model.ActionClick, Target: "#submit"},
			status:   model.StatusSuccess,
			strategy: model.StrategyDeterministic,
			methods:  []string{"Click"},
			check: func(t *testing.T, a *model.BrowserAction, _ *drivertest.FakePage) {
				assert.Equal(t, "#submit", a.Result["target"])
			},
		},
		{
			name:    "click without target",
			intent:  model.Intent{Action: model.ActionClick},
			status:  model.StatusFailed,
			code:    model.CodeMissingParameter,
			methods: nil,
		},
		{
			name:     "type",
			intent:   model.Intent{Action: model.ActionTypeText, Target: "#q", Value: "hello"},
			status:   model.StatusSuccess,
			strategy: model.StrategyDeterministic,
			methods:  []string{"Fill"},
			check: func(t *testing.T, a *model.BrowserAction, p *drivertest.FakePage) {
				assert.Equal(t, []any{"#q", "hello"}, p.Calls()[0].Args)
				assert.Equal(t, "hello", a.Result["value"])
			},
		},
		{
			name:    "type without value",
			intent:  model.Intent{Action: model.ActionTypeText, Target: "#q"},
			status:  model.StatusFailed,
			code:    model.CodeMissingParameter,
			methods: nil,
		},
		{
			name:     "search fills and submits",
			intent:   model.Intent{Action: model.ActionSearch, Value: "golang"},
			status:   model.StatusSuccess,
			strategy: model.StrategyDeterministic,
			methods:  []string{"Fill", "Click"},
			check: func(t *testing.T, a *model.BrowserAction, _ *drivertest.FakePage) {
				assert.Equal(t, "golang", a.Result["query"])
			},
		},
		{
			name:     "search without a search box",
			intent:   model.Intent{Action: model.ActionSearch, Value: "golang"},
			setup:    func(p *drivertest.FakePage) { p.FailOn("Fill", boom) },
			status:   model.StatusSuccess,
			strategy: model.StrategyFallback,
			methods:  []string{"Fill", "Act"},
		},
		{
			name:    "search without query",
			intent:  model.Intent{Action: model.ActionSearch},
			status:  model.StatusFailed,
			code:    model.CodeMissingParameter,
			methods: nil,
		},
		{
			name:     "scroll up by the configured amount",
			intent:   model.Intent{Action: model.ActionScroll, Value: "up"},
			status:   model.StatusSuccess,
			strategy: model.StrategyDeterministic,
			methods:  []string{"ScrollBy"},
			check: func(t *testing.T, a *model.BrowserAction, p *drivertest.FakePage) {
				assert.Equal(t, []any{0, -300}, p.Calls()[0].Args)
				assert.Equal(t, "up", a.Result["direction"])
			},
		},
		{
			name:     "scroll defaults to down",
			intent:   model.Intent{Action: model.ActionScroll},
			status:   model.StatusSuccess,
			strategy: model.StrategyDeterministic,
			methods:  []string{"ScrollBy"},
			check: func(t *testing.T, _ *model.BrowserAction, p *drivertest.FakePage) {
				assert.Equal(t, []any{0, 300}, p.Calls()[0].Args)
			},
		},
		{
			name:     "scroll to element",
			intent:   model.Intent{Action: model.ActionScroll, Target: "#footer"},
			status:   model.StatusSuccess,
			strategy: model.StrategyDeterministic,
			methods:  []string{"ScrollIntoView"},
		},
		{
			name:     "wait for duration",
			intent:   model.Intent{Action: model.ActionWait, Value: "250"},
			status:   model.StatusSuccess,
			strategy: model.StrategyDeterministic,
			methods:  []string{"WaitForTimeout"},
			check: func(t *testing.T, a *model.BrowserAction, p *drivertest.FakePage) {
				assert.Equal(t, 250*time.Millisecond, p.Calls()[0].Args[0])
				assert.Equal(t, 250, a.Result["duration"])
			},
		},
		{
			name:     "wait for element with default timeout",
			intent:   model.Intent{Action: model.ActionWait, Target: ".loaded", Value: "soon"},
			status:   model.StatusSuccess,
			strategy: model.StrategyDeterministic,
			methods:  []string{"WaitForSelector"},
			check: func(t *testing.T, _ *model.BrowserAction, p *drivertest.FakePage) {
				assert.Equal(t, []any{".loaded", time.Second}, p.Calls()[0].Args)
			},
		},
		{
			name:     "extract with default schema",
			intent:   model.Intent{Action: model.ActionExtract, Value: "get the prices"},
			setup:    func(p *drivertest.FakePage) { p.ExtractResult = map[string]any{"content": "$10"} },
			status:   model.StatusSuccess,
			strategy: model.StrategyAI,
			methods:  []string{"Extract"},
			check: func(t *testing.T, a *model.BrowserAction, p *drivertest.FakePage) {
				assert.Equal(t, map[string]any{"content": "$10"}, a.Result["result"])
				schema := p.Calls()[0].Args[1].(map[string]any)
				assert.Contains(t, schema["properties"], "links")
			},
		},
		{
			name: "extract with caller schema",
			intent: model.Intent{Action: model.ActionExtract, Parameters: map[string]any{
				"schema": map[string]any{"type": "object", "properties": map[string]any{"title": map[string]any{"type": "string"}}},
			}},
			status:   model.StatusSuccess,
			strategy: model.StrategyAI,
			methods:  []string{"Extract"},
			check: func(t *testing.T, a *model.BrowserAction, p *drivertest.FakePage) {
				args := p.Calls()[0].Args
				assert.Equal(t, "Extract all visible text and data from the page", args[0])
				assert.Contains(t, args[1].(map[string]any)["properties"], "title")
			},
		},
		{
			name:    "extract failure",
			intent:  model.Intent{Action: model.ActionExtract},
			setup:   func(p *drivertest.FakePage) { p.FailOn("Extract", boom) },
			status:  model.StatusFailed,
			code:    model.CodeExtractionFailed,
			methods: []string{"Extract"},
		},
		{
			name:   "observe",
			intent: model.Intent{Action: model.ActionObserve},
			setup: func(p *drivertest.FakePage) {
				p.Observations = []driver.Observation{{Description: "Sign in button", Selector: "#login"}}
			},
			status:   model.StatusSuccess,
			strategy: model.StrategyAI,
			methods:  []string{"Observe"},
			check: func(t *testing.T, a *model.BrowserAction, _ *drivertest.FakePage) {
				obs := a.Result["result"].([]driver.Observation)
				assert.Equal(t, "#login", obs[0].Selector)
			},
		},
		{
			name:    "observe failure",
			intent:  model.Intent{Action: model.ActionObserve},
			setup:   func(p *drivertest.FakePage) { p.FailOn("Observe", driver.ErrNoModel) },
			status:  model.StatusFailed,
			code:    model.CodeObservationFailed,
			methods: []string{"Observe"},
		},
		{
			name:     "screenshot",
			intent:   model.Intent{Action: model.ActionScreenshot},
			status:   model.StatusSuccess,
			strategy: model.StrategyDeterministic,
			methods:  []string{"Screenshot"},
			check: func(t *testing.T, a *model.BrowserAction, _ *drivertest.FakePage) {
				shot := a.Result["screenshot"].(string)
				assert.True(t, strings.HasPrefix(shot, "data:image/png;base64,"))
			},
		},
		{
			name:    "screenshot with no image",
			intent:  model.Intent{Action: model.ActionScreenshot},
			setup:   func(p *drivertest.FakePage) { p.ScreenshotBytes = nil },
			status:  model.StatusFailed,
			code:    model.CodeScreenshotFailed,
			methods: []string{"Screenshot"},
		},
		{
			name:    "unknown action touches nothing",
			intent:  model.UnknownIntent(),
			status:  model.StatusFailed,
			code:    model.CodeUnknownAction,
			methods: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := drivertest.NewFakePage()
			if tt.setup != nil {
				tt.setup(page)
			}
			e := newExecutor(t, page, service.ExecutorOptions{ScrollAmount: 300})

			a, err := e.Execute(context.Background(), tt.intent)
			require.NoError(t, err)

			assert.Equal(t, tt.status, a.Status)
			assert.Equal(t, tt.code, a.ErrorCode)
			assert.Equal(t, tt.strategy, a.Strategy)
			assert.Equal(t, tt.methods, page.Methods())
			if tt.status == model.StatusSuccess {
				assert.NotNil(t, a.Result)
				assert.Empty(t, a.Error)
			} else {
				assert.Nil(t, a.Result)
				assert.NotEmpty(t, a.Error)
			}
			if tt.check != nil {
				tt.check(t, a, page)
			}
		})
	}
}

func TestExecutePublishesLifecycle(t *testing.T) {
	obs := &recordingObserver{}
	e := newExecutor(t, drivertest.NewFakePage(), service.ExecutorOptions{Observer: obs})

	a, err := e.Execute(context.Background(), model.Intent{Action: model.ActionClick, Target: "#a"})
	require.NoError(t, err)

	assert.Equal(t, []model.ActionStatus{model.StatusPending, model.StatusRunning, model.StatusSuccess}, obs.statuses(a.ID))
	assert.True(t, strings.HasPrefix(a.ID, "action_"))
}

func TestExecuteRecordsMemory(t *testing.T) {
	mem := memory.NewInMemory(10)
	e := newExecutor(t, drivertest.NewFakePage(), service.ExecutorOptions{Memory: mem})

	_, err := e.Execute(context.Background(), model.Intent{Action: model.ActionNavigate, Value: "https://example.com"})
	require.NoError(t, err)

	sc, err := mem.Context(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, sc.LastAction)
	assert.Equal(t, model.StatusSuccess, sc.LastAction.Status)
	assert.Equal(t, "https://example.com", sc.CurrentURL)
}

func TestMemoryFailureDoesNotChangeOutcome(t *testing.T) {
	sink := &failingSink{}
	e := newExecutor(t, drivertest.NewFakePage(), service.ExecutorOptions{Memory: sink})

	a, err := e.Execute(context.Background(), model.Intent{Action: model.ActionClick, Target: "#a"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, a.Status)
	assert.Equal(t, 1, sink.calls)
}

func TestExecuteIsFIFO(t *testing.T) {
	page := drivertest.NewFakePage()
	page.Block = make(chan struct{})
	page.Started = make(chan string, 8)
	e := newExecutor(t, page, service.ExecutorOptions{})

	var wg sync.WaitGroup
	submit := func(in model.Intent) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Execute(context.Background(), in)
			assert.NoError(t, err)
		}()
	}

	submit(model.Intent{Action: model.ActionNavigate, Value: "https://a.example"})
	assert.Equal(t, "Goto", <-page.Started)

	submit(model.Intent{Action: model.ActionClick, Target: "#b"})
	time.Sleep(20 * time.Millisecond)
	submit(model.Intent{Action: model.ActionTypeText, Target: "#c", Value: "x"})
	time.Sleep(20 * time.Millisecond)

	select {
	case m := <-page.Started:
		t.Fatalf("%s started while another action was running", m)
	default:
	}

	close(page.Block)
	wg.Wait()
	assert.Equal(t, []string{"Goto", "Click", "Fill"}, page.Methods())
}

func TestCloseWaitsForRunningAndRejectsQueued(t *testing.T) {
	page := drivertest.NewFakePage()
	page.Block = make(chan struct{})
	page.Started = make(chan string, 8)
	e := newExecutor(t, page, service.ExecutorOptions{})

	running := make(chan *model.BrowserAction, 1)
	go func() {
		a, _ := e.Execute(context.Background(), model.Intent{Action: model.ActionClick, Target: "#slow"})
		running <- a
	}()
	<-page.Started

	closed := make(chan error, 1)
	go func() { closed <- e.Close() }()
	require.Eventually(t, e.Closed, time.Second, 5*time.Millisecond)

	queued, err := e.Execute(context.Background(), model.Intent{Action: model.ActionClick, Target: "#next"})
	assert.ErrorIs(t, err, service.ErrExecutorClosed)
	assert.Equal(t, model.StatusFailed, queued.Status)

	select {
	case <-closed:
		t.Fatal("Close returned while an action was running")
	default:
	}

	close(page.Block)
	require.NoError(t, <-closed)
	a := <-running
	assert.Equal(t, model.StatusSuccess, a.Status)
	assert.True(t, page.Closed())
	assert.Equal(t, []string{"Click"}, page.Methods())
}

func TestExecuteQueuedContextCancelled(t *testing.T) {
	page := drivertest.NewFakePage()
	page.Block = make(chan struct{})
	page.Started = make(chan string, 8)
	e := newExecutor(t, page, service.ExecutorOptions{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.Execute(context.Background(), model.Intent{Action: model.ActionClick, Target: "#slow"})
	}()
	<-page.Started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	a, err := e.Execute(ctx, model.Intent{Action: model.ActionClick, Target: "#late"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, model.StatusFailed, a.Status)
	assert.Equal(t, model.CodeAutomationFailed, a.ErrorCode)

	close(page.Block)
	<-done
}

func TestCloseIsIdempotent(t *testing.T) {
	page := drivertest.NewFakePage()
	e := newExecutor(t, page, service.ExecutorOptions{})
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.True(t, page.Closed())

	_, err := e.Execute(context.Background(), model.Intent{Action: model.ActionScreenshot})
	assert.ErrorIs(t, err, service.ErrExecutorClosed)
}

func TestNewExecutorLaunchFailure(t *testing.T) {
	l := drivertest.NewFakeLauncher()
	l.Err = errors.New("no browser")
	_, err := service.NewExecutor(context.Background(), "s1", l, service.ExecutorOptions{})
	assert.ErrorContains(t, err, "no browser")
}

func TestWaitIsClampedToMaxWait(t *testing.T) {
	tests := []struct {
		name   string
		intent model.Intent
		call   drivertest.Call
	}{
		{
			name:   "timeout",
			intent: model.Intent{Action: model.ActionWait, Value: "86400000"},
			call:   drivertest.Call{Method: "WaitForTimeout", Args: []any{50 * time.Millisecond}},
		},
		{
			name:   "selector",
			intent: model.Intent{Action: model.ActionWait, Target: "#late", Value: "86400000"},
			call:   drivertest.Call{Method: "WaitForSelector", Args: []any{"#late", 50 * time.Millisecond}},
		},
		{
			name:   "under the cap",
			intent: model.Intent{Action: model.ActionWait, Value: "20"},
			call:   drivertest.Call{Method: "WaitForTimeout", Args: []any{20 * time.Millisecond}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := drivertest.NewFakePage()
			e := newExecutor(t, page, service.ExecutorOptions{MaxWait: 50 * time.Millisecond})

			a, err := e.Execute(context.Background(), tt.intent)
			require.NoError(t, err)
			assert.Equal(t, model.StatusSuccess, a.Status)
			assert.Equal(t, []drivertest.Call{tt.call}, page.Calls())
		})
	}
}

func TestCloseRejectsEveryQueuedSubmission(t *testing.T) {
	for i := 0; i < 20; i++ {
		page := drivertest.NewFakePage()
		page.Block = make(chan struct{})
		page.Started = make(chan string, 8)
		e := newExecutor(t, page, service.ExecutorOptions{})

		go func() { _, _ = e.Execute(context.Background(), model.Intent{Action: model.ActionClick, Target: "#slow"}) }()
		<-page.Started

		var wg sync.WaitGroup
		errs := make(chan error, 3)
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := e.Execute(context.Background(), model.Intent{Action: model.ActionScreenshot})
				errs <- err
			}()
		}
		time.Sleep(5 * time.Millisecond)

		closed := make(chan error, 1)
		go func() { closed <- e.Close() }()
		require.Eventually(t, e.Closed, time.Second, time.Millisecond)
		close(page.Block)

		require.NoError(t, <-closed)
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.ErrorIs(t, err, service.ErrExecutorClosed)
		}
		assert.Equal(t, []string{"Click"}, page.Methods())
	}
}
