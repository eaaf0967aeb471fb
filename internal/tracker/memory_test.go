package tracker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/babelcloud/voicepilot/internal/tracker"
)

func TestInMemoryAccessTracker(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := tracker.NewInMemoryAccessTracker().WithClock(func() time.Time { return now })

	tr.Update("a")
	ts, ok := tr.GetLastAccessed("a")
	assert.True(t, ok)
	assert.Equal(t, now, ts)

	ts, ok = tr.GetLastAccessed("fresh")
	assert.True(t, ok, "untracked sessions start now")
	assert.Equal(t, now, ts)

	now = now.Add(10 * time.Minute)
	tr.Update("b")
	assert.ElementsMatch(t, []string{"a", "fresh"}, tr.IdleLongerThan([]string{"a", "b", "fresh"}, 5*time.Minute))

	tr.Remove("a")
	ts, _ = tr.GetLastAccessed("a")
	assert.Equal(t, now, ts)
}
