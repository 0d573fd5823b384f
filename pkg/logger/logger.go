// Package logger provides the structured logger shared by every storefront
// component. It is a thin layer over logrus that pins the component field and
// the output format.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a component-scoped logrus entry.
type Logger struct {
	*logrus.Entry
}

// Config configures a Logger.
type Config struct {
	Component string
	Level     string // debug, info, warn, error
	Format    string // json, text
	Output    io.Writer
}

// New creates a logger from configuration. Unknown levels fall back to info.
func New(cfg Config) *Logger {
	base := logrus.New()

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	base.SetOutput(out)

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.SetFormatter(&logrus.JSONFormatter{})
	}

	component := strings.TrimSpace(cfg.Component)
	if component == "" {
		component = "storefront"
	}

	return &Logger{Entry: base.WithField("component", component)}
}

// NewDefault creates an info-level JSON logger for the named component.
func NewDefault(component string) *Logger {
	return New(Config{Component: component})
}

// NewDiscard creates a logger that drops everything. Used in tests.
func NewDiscard() *Logger {
	return New(Config{Component: "discard", Output: io.Discard})
}

// Named returns a logger for a sub-component sharing the same sink and level.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", component)}
}

// With returns a logger carrying an extra field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}
