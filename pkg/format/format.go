package format

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/babelcloud/voicepilot/pkg/logger"
)

// APIEndpoint is one row of the startup route table.
type APIEndpoint struct {
	Method      string
	Path        string
	Description string
}

var methodColors = map[string]*color.Color{
	"GET":    color.New(color.Bold, color.FgGreen),
	"POST":   color.New(color.Bold, color.FgYellow),
	"PUT":    color.New(color.Bold, color.FgBlue),
	"PATCH":  color.New(color.Bold, color.FgCyan),
	"DELETE": color.New(color.Bold, color.FgRed),
}

// FormatHTTPMethod colors method by verb, padded to the widest verb so the
// escape codes don't break column alignment.
func FormatHTTPMethod(method string) string {
	c, ok := methodColors[method]
	if !ok {
		c = color.New(color.Bold)
	}
	return c.Sprintf("%-6s", method)
}

// FormatBrowserEngine returns the startup banner naming the browser engine.
func FormatBrowserEngine(engine string, remote bool) string {
	green := color.New(color.FgGreen)
	where := "local"
	if remote {
		where = "remote"
	}
	return green.Sprint("Driving ") +
		color.New(color.Bold, color.FgCyan).Sprint(engine) +
		green.Sprintf(" browsers (%s)...", where)
}

// FormatDurationConcise renders d as "1h30m", "45s" and so on, dropping zero units.
func FormatDurationConcise(d time.Duration) string {
	if d <= 0 {
		return "disabled"
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	out := ""
	if h > 0 {
		out += fmt.Sprintf("%dh", h)
	}
	if m > 0 {
		out += fmt.Sprintf("%dm", m)
	}
	if s > 0 || out == "" {
		out += fmt.Sprintf("%ds", s)
	}
	return out
}

// LogAPIEndpoints logs the route table with paths padded to the longest one.
func LogAPIEndpoints(log *logger.Logger, endpoints []APIEndpoint) {
	width := 0
	for _, e := range endpoints {
		width = max(width, len(e.Path))
	}
	log.Info("API endpoints:")
	for _, e := range endpoints {
		log.Info("  %s  %-*s  %s", FormatHTTPMethod(e.Method), width, e.Path, e.Description)
	}
}
