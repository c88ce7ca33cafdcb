// Package logging provides the structured loggers used by wikimigrate
// components. Loggers are backed by go-logger; packages depend only on the
// small Logger interface so tests can run with NoOp.
package logging

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// Component logger names.
const (
	ExportModule     = "wikimigrate.export"
	PlanModule       = "wikimigrate.plan"
	ExecutorModule   = "wikimigrate.executor"
	ConfluenceModule = "wikimigrate.confluence"
	StorageModule    = "wikimigrate.storage"
	JournalModule    = "wikimigrate.journal"
)

// Logger is the logging contract used across the module.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithFields(fields map[string]any) Logger
}

// Config captures the options exposed by the go-logger adapter.
type Config struct {
	Level  string
	Format string
}

// Provider hands out named loggers sharing one go-logger root.
type Provider struct {
	root *glog.BaseLogger
}

// NewProvider constructs a logger provider backed by go-logger.
func NewProvider(cfg Config) (*Provider, error) {
	options := []glog.Option{}

	if level := normalizeLevel(cfg.Level); level != "" {
		options = append(options, glog.WithLevel(level))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "console":
		options = append(options, glog.WithLoggerTypeConsole())
	case "json":
		options = append(options, glog.WithLoggerTypeJSON())
	case "pretty":
		options = append(options, glog.WithLoggerTypePretty())
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", cfg.Format)
	}

	return &Provider{root: glog.NewLogger(options...)}, nil
}

// Logger returns a named child logger. A nil provider yields NoOp.
func (p *Provider) Logger(name string) Logger {
	if p == nil || p.root == nil {
		return NoOp()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return wrap(p.root)
	}
	return wrap(p.root.GetLogger(name))
}

func wrap(inner glog.Logger) Logger {
	if inner == nil {
		return NoOp()
	}
	return &adapter{inner: inner}
}

type adapter struct {
	inner glog.Logger
}

func (l *adapter) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }
func (l *adapter) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *adapter) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l *adapter) Error(msg string, args ...any) { l.inner.Error(msg, args...) }

func (l *adapter) WithFields(fields map[string]any) Logger {
	if len(fields) == 0 {
		return l
	}
	if with, ok := l.inner.(glog.FieldsLogger); ok {
		copied := make(map[string]any, len(fields))
		maps.Copy(copied, fields)
		return wrap(with.WithFields(copied))
	}
	return &fieldAdapter{inner: l.inner, args: sortedArgs(fields)}
}

// fieldAdapter prepends key/value pairs when the backend has no field support.
type fieldAdapter struct {
	inner glog.Logger
	args  []any
}

func (l *fieldAdapter) Debug(msg string, args ...any) { l.inner.Debug(msg, l.with(args)...) }
func (l *fieldAdapter) Info(msg string, args ...any)  { l.inner.Info(msg, l.with(args)...) }
func (l *fieldAdapter) Warn(msg string, args ...any)  { l.inner.Warn(msg, l.with(args)...) }
func (l *fieldAdapter) Error(msg string, args ...any) { l.inner.Error(msg, l.with(args)...) }

func (l *fieldAdapter) WithFields(fields map[string]any) Logger {
	return &fieldAdapter{inner: l.inner, args: append(append([]any{}, l.args...), sortedArgs(fields)...)}
}

func (l *fieldAdapter) with(args []any) []any {
	return append(append([]any{}, l.args...), args...)
}

func sortedArgs(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return args
}

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return glog.Trace
	case "debug":
		return glog.Debug
	case "info":
		return glog.Info
	case "warn", "warning":
		return glog.Warn
	case "error":
		return glog.Error
	default:
		return ""
	}
}

// NoOp returns a logger that drops every entry.
func NoOp() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any)               {}
func (noopLogger) Info(string, ...any)                {}
func (noopLogger) Warn(string, ...any)                {}
func (noopLogger) Error(string, ...any)               {}
func (n noopLogger) WithFields(map[string]any) Logger { return n }

// OrNoOp returns l, or NoOp when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOp()
	}
	return l
}
