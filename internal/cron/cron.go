package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/babelcloud/voicepilot/pkg/format"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

const (
	// Timeout for one idle-session reap run
	sessionReapTimeout = 2 * time.Minute
)

// Sessions is the part of the session registry the reaper drives.
type Sessions interface {
	List() []string
	Close(ctx context.Context, sessionID string) error
}

// IdleTracker reports which sessions have been idle past a threshold.
type IdleTracker interface {
	IdleLongerThan(ids []string, threshold time.Duration) []string
}

// Manager manages cron jobs
type Manager struct {
	cron        *cron.Cron
	logger      *logger.Logger
	sessions    Sessions
	tracker     IdleTracker
	schedule    string
	idleTimeout time.Duration
}

// NewManager creates a new cron manager. A non-positive idleTimeout disables reaping.
func NewManager(logger *logger.Logger, sessions Sessions, tracker IdleTracker, schedule string, idleTimeout time.Duration) *Manager {
	return &Manager{
		cron:        cron.New(cron.WithLogger(cron.DefaultLogger)),
		logger:      logger,
		sessions:    sessions,
		tracker:     tracker,
		schedule:    schedule,
		idleTimeout: idleTimeout,
	}
}

// Start starts the cron manager
func (m *Manager) Start() error {
	if m.idleTimeout > 0 {
		if _, err := m.cron.AddFunc(m.schedule, m.reapIdleSessions); err != nil {
			return err
		}
		m.logger.Info("Idle session reaper scheduled (%s, idle timeout %s)",
			m.schedule, format.FormatDurationConcise(m.idleTimeout))
	} else {
		m.logger.Info("Idle session reaper disabled")
	}

	m.cron.Start()
	m.logger.Info("Cron manager started")
	return nil
}

// Stop stops the cron manager and waits for a running job to finish.
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("Cron manager stopped")
}

func (m *Manager) reapIdleSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), sessionReapTimeout)
	defer cancel()

	n := m.ReapIdle(ctx)
	if ctx.Err() == context.DeadlineExceeded {
		m.logger.Error("Idle session reap timed out after %v", sessionReapTimeout)
		return
	}
	if n > 0 {
		m.logger.Info("Reaped %d idle session(s)", n)
	}
}

// ReapIdle closes every session idle longer than the configured timeout and
// returns how many were closed.
func (m *Manager) ReapIdle(ctx context.Context) int {
	idle := m.tracker.IdleLongerThan(m.sessions.List(), m.idleTimeout)
	closed := 0
	for _, id := range idle {
		if ctx.Err() != nil {
			break
		}
		m.logger.Debug("Closing idle session %s", id)
		if err := m.sessions.Close(ctx, id); err != nil {
			m.logger.Error("Failed to close idle session %s: %v", id, err)
			continue
		}
		closed++
	}
	return closed
}
