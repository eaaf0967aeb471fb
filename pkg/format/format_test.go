package format_test

import (
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/babelcloud/voicepilot/pkg/format"
)

func TestFormatDurationConcise(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "disabled"},
		{45 * time.Second, "45s"},
		{90 * time.Minute, "1h30m"},
		{2*time.Hour + 5*time.Second, "2h5s"},
		{400 * time.Millisecond, "0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, format.FormatDurationConcise(tt.in), tt.in.String())
	}
}

func TestFormatHTTPMethodKeepsText(t *testing.T) {
	for _, m := range []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"} {
		assert.Contains(t, format.FormatHTTPMethod(m), m)
	}
}

func TestFormatHTTPMethodPads(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = old })

	assert.Equal(t, "GET   ", format.FormatHTTPMethod("GET"))
	assert.Equal(t, "DELETE", format.FormatHTTPMethod("DELETE"))
	assert.Equal(t, "HEAD  ", format.FormatHTTPMethod("HEAD"))
}
