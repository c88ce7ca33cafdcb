package logging

import (
	"context"
	"reflect"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestNewProviderCreatesLogger(t *testing.T) {
	p, err := NewProvider(Config{Level: "debug", Format: "console"})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	logger := p.Logger(ExecutorModule)
	if logger == nil {
		t.Fatal("expected logger, got nil")
	}
	logger.WithFields(map[string]any{"run_id": "r1"}).Debug("executor.started")
}

func TestNewProviderRejectsUnknownFormat(t *testing.T) {
	if _, err := NewProvider(Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNilProviderIsNoOp(t *testing.T) {
	var p *Provider
	logger := p.Logger("anything")
	if _, ok := logger.(noopLogger); !ok {
		t.Fatalf("expected noop logger, got %T", logger)
	}
	logger.Info("dropped")
}

func TestAdapterDelegates(t *testing.T) {
	stub := &stubLogger{}
	adapted := wrap(stub)

	adapted.Debug("debug")
	adapted.Info("info")
	adapted.Warn("warn")
	adapted.Error("error")

	fields := map[string]any{"node": "a"}
	adapted.WithFields(fields)
	fields["node"] = "b"

	if want := []string{"debug", "info", "warn", "error"}; !reflect.DeepEqual(stub.calls, want) {
		t.Fatalf("calls = %v, want %v", stub.calls, want)
	}
	if len(stub.fields) != 1 || stub.fields[0]["node"] != "a" {
		t.Fatalf("expected fields to be copied, got %v", stub.fields)
	}
}

func TestFieldAdapterPrependsArgs(t *testing.T) {
	stub := &plainLogger{}
	logger := wrap(stub).WithFields(map[string]any{"b": 2, "a": 1})
	logger.Info("msg", "c", 3)

	want := []any{"a", 1, "b", 2, "c", 3}
	if !reflect.DeepEqual(stub.args, want) {
		t.Fatalf("args = %v, want %v", stub.args, want)
	}
}

type plainLogger struct {
	args []any
}

var _ glog.Logger = (*plainLogger)(nil)

func (s *plainLogger) Trace(string, ...any)                    {}
func (s *plainLogger) Debug(string, ...any)                    {}
func (s *plainLogger) Info(_ string, args ...any)              { s.args = args }
func (s *plainLogger) Warn(string, ...any)                     {}
func (s *plainLogger) Error(string, ...any)                    {}
func (s *plainLogger) Fatal(string, ...any)                    {}
func (s *plainLogger) WithContext(context.Context) glog.Logger { return s }

type stubLogger struct {
	calls  []string
	fields []map[string]any
}

var _ glog.Logger = (*stubLogger)(nil)
var _ glog.FieldsLogger = (*stubLogger)(nil)

func (s *stubLogger) Trace(string, ...any) { s.calls = append(s.calls, "trace") }
func (s *stubLogger) Debug(string, ...any) { s.calls = append(s.calls, "debug") }
func (s *stubLogger) Info(string, ...any)  { s.calls = append(s.calls, "info") }
func (s *stubLogger) Warn(string, ...any)  { s.calls = append(s.calls, "warn") }
func (s *stubLogger) Error(string, ...any) { s.calls = append(s.calls, "error") }
func (s *stubLogger) Fatal(string, ...any) { s.calls = append(s.calls, "fatal") }

func (s *stubLogger) WithContext(context.Context) glog.Logger { return s }

func (s *stubLogger) WithFields(fields map[string]any) glog.Logger {
	s.fields = append(s.fields, fields)
	return s
}
