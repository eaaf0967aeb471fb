package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/babelcloud/voicepilot/internal/browser/driver"
	"github.com/babelcloud/voicepilot/internal/memory"
	model "github.com/babelcloud/voicepilot/pkg/agent"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

const (
	defaultScrollAmount = 500
	defaultMaxWait      = 30 * time.Second
	memoryWriteTimeout  = 10 * time.Second
)

// PageLauncher opens the browser page backing a new session.
type PageLauncher interface {
	Launch(ctx context.Context, sessionID string) (driver.Page, error)
}

// ActionObserver is told about every status change of every action.
type ActionObserver interface {
	ActionUpdated(sessionID string, action model.BrowserAction)
}

// ExecutorOptions configures executors created by a registry.
type ExecutorOptions struct {
	ScrollAmount int
	// MaxWait caps the duration of a wait action; a running action holds
	// the session until it settles.
	MaxWait  time.Duration
	Memory   memory.Sink
	Observer ActionObserver
	Log      *logger.Logger
}

type job struct {
	ctx    context.Context
	action *model.BrowserAction
	reply  chan error
}

// Executor runs intents against one session's page. Submissions are served
// one at a time in arrival order by a single worker goroutine.
type Executor struct {
	sessionID    string
	page         driver.Page
	memory       memory.Sink
	observer     ActionObserver
	log          *logger.Logger
	scrollAmount int
	maxWait      time.Duration
	createdAt    time.Time

	jobs      chan job
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewExecutor launches the session's page and starts its worker. On launch
// failure nothing is left running.
func NewExecutor(ctx context.Context, sessionID string, launcher PageLauncher, opts ExecutorOptions) (*Executor, error) {
	page, err := launcher.Launch(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("initialize session %s: %w", sessionID, err)
	}
	if opts.ScrollAmount <= 0 {
		opts.ScrollAmount = defaultScrollAmount
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = defaultMaxWait
	}
	if opts.Memory == nil {
		opts.Memory = memory.Noop{}
	}
	if opts.Log == nil {
		opts.Log = logger.New()
	}

	e := &Executor{
		sessionID:    sessionID,
		page:         page,
		memory:       opts.Memory,
		observer:     opts.Observer,
		log:          opts.Log,
		scrollAmount: opts.ScrollAmount,
		maxWait:      opts.MaxWait,
		createdAt:    time.Now(),
		jobs:         make(chan job),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go e.loop()
	return e, nil
}

func (e *Executor) SessionID() string { return e.sessionID }

func (e *Executor) CreatedAt() time.Time { return e.createdAt }

// LiveViewURL is where the session's browser can be watched, or "".
func (e *Executor) LiveViewURL() string { return e.page.LiveViewURL() }

// Execute runs in to completion and returns the terminal action. The error is
// non-nil only when the action never started: the executor closed or ctx
// ended while the submission was queued. Once running, an action is not
// cancelled by ctx.
func (e *Executor) Execute(ctx context.Context, in model.Intent) (*model.BrowserAction, error) {
	action := model.NewBrowserAction(in)
	e.publish(action)

	j := job{ctx: context.WithoutCancel(ctx), action: action, reply: make(chan error, 1)}
	select {
	case e.jobs <- j:
	case <-e.quit:
		return e.reject(action, ErrExecutorClosed)
	case <-ctx.Done():
		return e.reject(action, ctx.Err())
	}
	if err := <-j.reply; err != nil {
		return e.reject(action, err)
	}
	return action, nil
}

func (e *Executor) reject(action *model.BrowserAction, cause error) (*model.BrowserAction, error) {
	action.Fail(model.NewActionError(model.CodeAutomationFailed, "not started: "+cause.Error()))
	e.publish(action)
	return action, cause
}

func (e *Executor) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			return
		default:
		}
		select {
		case j := <-e.jobs:
			// Both cases may be ready at once; a job handed over after Close
			// began is still rejected.
			if e.Closed() {
				j.reply <- ErrExecutorClosed
				continue
			}
			e.run(j.ctx, j.action)
			j.reply <- nil
		case <-e.quit:
			return
		}
	}
}

func (e *Executor) run(ctx context.Context, action *model.BrowserAction) {
	action.Start()
	e.publish(action)

	in := action.Intent
	e.log.Debug("Session %s: executing %s", e.sessionID, in.Describe())
	result, strategy, err := e.dispatch(ctx, in)
	if err != nil {
		action.Fail(err)
		e.log.Warn("Session %s: %s failed: %v", e.sessionID, in.Action, err)
	} else {
		action.Succeed(result, strategy)
		e.log.Debug("Session %s: %s succeeded (%s)", e.sessionID, in.Action, strategy)
	}

	mctx, cancel := context.WithTimeout(ctx, memoryWriteTimeout)
	defer cancel()
	if err := e.memory.RecordAction(mctx, memory.NewActionRecord(e.sessionID, action, e.page.URL())); err != nil {
		e.log.Warn("Session %s: failed to record %s action: %v", e.sessionID, in.Action, err)
	}
	e.publish(action)
}

func (e *Executor) publish(action *model.BrowserAction) {
	if e.observer != nil {
		e.observer.ActionUpdated(e.sessionID, action.Snapshot())
	}
}

// Close stops accepting work, waits for the running action to settle,
// rejects anything still queued and releases the page. It is idempotent.
func (e *Executor) Close() error {
	e.closeOnce.Do(func() {
		close(e.quit)
		<-e.done
		e.closeErr = e.page.Close()
	})
	return e.closeErr
}

// Closed reports whether Close has begun.
func (e *Executor) Closed() bool {
	select {
	case <-e.quit:
		return true
	default:
		return false
	}
}
