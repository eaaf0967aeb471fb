package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/babelcloud/voicepilot/internal/tracker"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

// Registry owns at most one live Executor per session id.
type Registry struct {
	launcher PageLauncher
	opts     ExecutorOptions
	tracker  tracker.AccessTracker
	log      *logger.Logger

	mu        sync.RWMutex
	executors map[string]*Executor
	closed    bool
	creating  singleflight.Group
}

// NewRegistry creates an empty registry. accessTracker may be nil.
func NewRegistry(launcher PageLauncher, opts ExecutorOptions, accessTracker tracker.AccessTracker) *Registry {
	if opts.Log == nil {
		opts.Log = logger.New()
	}
	return &Registry{
		launcher:  launcher,
		opts:      opts,
		tracker:   accessTracker,
		log:       opts.Log,
		executors: make(map[string]*Executor),
	}
}

// GetOrCreate returns the session's executor, creating it on first use.
// Concurrent first calls for the same id share a single initialization; a
// failed initialization is returned to all of them and nothing is registered.
func (r *Registry) GetOrCreate(ctx context.Context, sessionID string) (*Executor, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrEmptySessionID
	}

	r.mu.RLock()
	e, exists := r.executors[sessionID]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRegistryClosed
	}
	if exists {
		r.touch(sessionID)
		return e, nil
	}

	v, err, _ := r.creating.Do(sessionID, func() (any, error) {
		r.mu.RLock()
		e, exists := r.executors[sessionID]
		r.mu.RUnlock()
		if exists {
			return e, nil
		}

		r.log.Info("Initializing browser session %s", sessionID)
		created, err := NewExecutor(ctx, sessionID, r.launcher, r.opts)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			_ = created.Close()
			return nil, ErrRegistryClosed
		}
		r.executors[sessionID] = created
		r.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	r.touch(sessionID)
	return v.(*Executor), nil
}

// Get returns the live executor for sessionID without creating one.
func (r *Registry) Get(sessionID string) (*Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[sessionID]
	return e, ok
}

func (r *Registry) touch(sessionID string) {
	if r.tracker != nil {
		r.tracker.Update(sessionID)
	}
}

// Close removes and tears down the session's executor. Unknown ids are a no-op.
func (r *Registry) Close(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	e, exists := r.executors[sessionID]
	delete(r.executors, sessionID)
	r.mu.Unlock()

	if r.tracker != nil {
		r.tracker.Remove(sessionID)
	}
	if !exists {
		return nil
	}

	r.log.Info("Closing browser session %s", sessionID)
	return closeWithContext(ctx, e)
}

// List returns the ids of live sessions in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.executors))
	for id := range r.executors {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Shutdown closes every session and refuses further creation.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	executors := make([]*Executor, 0, len(r.executors))
	for _, e := range r.executors {
		executors = append(executors, e)
	}
	r.executors = make(map[string]*Executor)
	r.mu.Unlock()

	var errs []error
	for _, e := range executors {
		if r.tracker != nil {
			r.tracker.Remove(e.SessionID())
		}
		if err := closeWithContext(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", e.SessionID(), err))
		}
	}
	if len(executors) > 0 {
		r.log.Info("Closed %d browser session(s) during shutdown", len(executors))
	}
	return errors.Join(errs...)
}

// closeWithContext closes e, giving up waiting (but not the close itself) when ctx ends.
func closeWithContext(ctx context.Context, e *Executor) error {
	done := make(chan error, 1)
	go func() { done <- e.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for session %s to close: %w", e.SessionID(), ctx.Err())
	}
}
