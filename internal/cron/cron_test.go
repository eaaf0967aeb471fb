package cron_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/voicepilot/internal/cron"
	"github.com/babelcloud/voicepilot/internal/tracker"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

type fakeSessions struct {
	mu      sync.Mutex
	ids     []string
	closed  []string
	failFor string
}

var _ cron.Sessions = (*fakeSessions)(nil)

func (f *fakeSessions) List() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func (f *fakeSessions) Close(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failFor {
		return errors.New("close failed")
	}
	f.closed = append(f.closed, id)
	return nil
}

func TestReapIdleClosesOnlyIdleSessions(t *testing.T) {
	now := time.Now()
	tr := tracker.NewInMemoryAccessTracker().WithClock(func() time.Time { return now })
	tr.Update("old")
	tr.Update("broken")

	now = now.Add(time.Hour)
	tr.Update("recent")

	sessions := &fakeSessions{ids: []string{"old", "recent", "broken"}, failFor: "broken"}
	m := cron.NewManager(logger.New(), sessions, tr, "@every 1m", 30*time.Minute)

	n := m.ReapIdle(context.Background())
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"old"}, sessions.closed)
}

func TestStartStopWithReaperDisabled(t *testing.T) {
	m := cron.NewManager(logger.New(), &fakeSessions{}, tracker.NewInMemoryAccessTracker(), "not a schedule", 0)
	require.NoError(t, m.Start())
	m.Stop()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	m := cron.NewManager(logger.New(), &fakeSessions{}, tracker.NewInMemoryAccessTracker(), "not a schedule", time.Minute)
	assert.Error(t, m.Start())
}
