package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	l := New()
	var buf bytes.Buffer
	oldOut, oldLevel, oldColor := l.Out, l.GetLevel(), color.NoColor
	l.SetOutput(&buf)
	color.NoColor = true
	t.Cleanup(func() {
		l.SetOutput(oldOut)
		l.SetLevel(oldLevel)
		color.NoColor = oldColor
	})
	return l, &buf
}

func TestLevels(t *testing.T) {
	l, buf := capture(t)
	l.SetLevel(logrus.InfoLevel)

	l.Debug("hidden %d", 1)
	l.Info("session %s opened", "s1")
	l.Warn("memory %s", "degraded")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "session s1 opened")
	assert.Contains(t, out, "memory degraded")
	assert.False(t, l.IsDebugEnabled())
}

func TestConfigure(t *testing.T) {
	t.Setenv("DEBUG", "")
	l, buf := capture(t)

	require.NoError(t, Configure(Options{Level: "WARN"}))
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	l.Info("dropped")
	l.Success("also dropped")
	assert.Empty(t, buf.String())

	assert.Error(t, Configure(Options{Level: "loud"}))

	file := filepath.Join(t.TempDir(), "voicepilot.log")
	require.NoError(t, Configure(Options{Level: "info", File: file, MaxSizeMB: 1}))
	l.Info("to file")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
