// Package logger provides the process-wide printf-style logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	global *Logger
	once   sync.Once
)

// Logger is a logrus logger with printf-style level methods.
type Logger struct {
	*logrus.Logger
	success *color.Color
}

func debugFromEnv() bool { return os.Getenv("DEBUG") == "true" }

// New returns the process-wide logger, creating it on first use. DEBUG=true
// starts it at debug level.
func New() *Logger {
	once.Do(func() {
		l := logrus.New()
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006/01/02 15:04:05",
			FullTimestamp:   true,
			ForceColors:     true,
			DisableSorting:  true,
		})
		l.SetLevel(logrus.InfoLevel)
		global = &Logger{Logger: l, success: color.New(color.FgGreen, color.Bold)}
		if debugFromEnv() {
			l.SetLevel(logrus.DebugLevel)
			global.Info("Debug logging enabled")
		}
	})
	return global
}

// Options controls level and file output after configuration is loaded.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Configure applies opts to the global logger. DEBUG=true wins over Level.
// With a File set, output is duplicated to a size-rotated log file.
func Configure(opts Options) error {
	l := New()
	if opts.Level != "" && !debugFromEnv() {
		lvl, err := logrus.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		l.SetLevel(lvl)
	}
	if opts.File != "" {
		l.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}))
	}
	return nil
}

// logf skips formatting for disabled levels.
func (l *Logger) logf(level logrus.Level, format string, args []interface{}) {
	if !l.IsLevelEnabled(level) {
		return
	}
	l.Logger.Log(level, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(logrus.DebugLevel, format, args)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(logrus.InfoLevel, format, args)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(logrus.WarnLevel, format, args)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(logrus.ErrorLevel, format, args)
}

// Fatal logs and exits with status 1.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.Logger.Fatal(fmt.Sprintf(format, args...))
}

// Success logs at info level in bold green.
func (l *Logger) Success(format string, args ...interface{}) {
	if l.IsLevelEnabled(logrus.InfoLevel) {
		l.Logger.Info(l.success.Sprintf(format, args...))
	}
}

func (l *Logger) IsDebugEnabled() bool {
	return l.IsLevelEnabled(logrus.DebugLevel)
}
