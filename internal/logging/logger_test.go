package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetState(t *testing.T) {
	t.Helper()
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	logBuffer = nil
	mutex.Unlock()
	t.Cleanup(func() { _ = Close() })
}

func TestModuleLevelOverride(t *testing.T) {
	resetState(t)

	if err := Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"watchdog": "debug",
			"api":      "warn",
		},
	}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"watchdog", true, true, true},
		{"api", false, false, true},
		{"process", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()

			gotDebug := handler.Enabled(context.Background(), slog.LevelDebug)
			gotInfo := handler.Enabled(context.Background(), slog.LevelInfo)
			gotWarn := handler.Enabled(context.Background(), slog.LevelWarn)

			if gotDebug != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, gotDebug, tt.wantDebug)
			}
			if gotInfo != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, gotInfo, tt.wantInfo)
			}
			if gotWarn != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, gotWarn, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetState(t)

	before := GetLogger("health")
	if before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should default to info")
	}

	if err := Initialize(Config{Level: "info", Modules: map[string]string{"health": "debug"}}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	// The early handle shares its LevelVar with the rebuilt logger.
	if !before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("early logger should pick up the module level set by Initialize")
	}
}

func TestSetLevels(t *testing.T) {
	resetState(t)

	if err := Initialize(Config{Level: "info"}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	logger := GetLogger("process")

	SetLevels("error", map[string]string{"process": "debug"})
	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("process should log debug after SetLevels")
	}
	if GetLogger("api").Handler().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("api should follow the global error level")
	}

	SetLevels("info", nil)
	if logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("process override should be gone after SetLevels without modules")
	}
}

func TestFileSink(t *testing.T) {
	resetState(t)

	path := filepath.Join(t.TempDir(), "watchdog.log")
	if err := Initialize(Config{Level: "info", File: path}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	GetLogger("watchdog").Warn("Health check failed", "status_code", 503)
	GetLogger("watchdog").Debug("not written")
	if err := Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "[WARN] [watchdog] Health check failed status_code=503") {
		t.Errorf("unexpected log file contents: %q", out)
	}
	if strings.Contains(out, "not written") {
		t.Errorf("debug entry should be filtered: %q", out)
	}

	// Lines start with a parseable timestamp.
	line := strings.SplitN(out, "\n", 2)[0]
	if _, err := time.Parse("2006-01-02 15:04:05.000", line[:23]); err != nil {
		t.Errorf("line does not start with a timestamp: %q (%v)", line, err)
	}
}

func TestFileSinkAppends(t *testing.T) {
	resetState(t)

	path := filepath.Join(t.TempDir(), "watchdog.log")
	if err := os.WriteFile(path, []byte("existing line\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Initialize(Config{File: path}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	GetLogger("main").Info("appended")
	_ = Close()

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "existing line\n") || !strings.Contains(string(data), "appended") {
		t.Errorf("log file was not appended to: %q", data)
	}
}

func TestInitializeUnwritableFile(t *testing.T) {
	resetState(t)

	err := Initialize(Config{File: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	if err == nil {
		t.Fatal("expected error for unwritable log file")
	}
	// Logging still works through the remaining outputs.
	GetLogger("main").Info("still alive")
	if GetBuffer().Count() == 0 {
		t.Error("ring buffer should still receive entries")
	}
}

func TestBufferCallback(t *testing.T) {
	resetState(t)

	var got []LogEntry
	SetLogCallback(func(e LogEntry) { got = append(got, e) })
	t.Cleanup(func() { SetLogCallback(nil) })

	if err := Initialize(Config{}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	GetLogger("api").Info("request", "path", "/api/status")

	if len(got) != 1 {
		t.Fatalf("callback called %d times, want 1", len(got))
	}
	if got[0].Module != "api" || got[0].Attributes["path"] != "/api/status" {
		t.Errorf("unexpected entry: %+v", got[0])
	}
}

func TestMultiHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(debugHandler, infoHandler)).With("module", "test")
	logger.Debug("debug only message")

	if count := strings.Count(buf.String(), "debug only message"); count != 1 {
		t.Errorf("Expected 1 debug message, got %d. Output: %s", count, buf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestMultiHandlerKeepsGoingOnError(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiHandler(
		NewFileHandler(failingWriter{}, slog.LevelInfo),
		NewFileHandler(&buf, slog.LevelInfo),
	)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "kept", 0)
	if err := multi.Handle(context.Background(), r); err == nil {
		t.Error("expected joined error from failing output")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Error("second output should still receive the record")
	}
}

func TestFileHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewFileHandler(&buf, slog.LevelInfo)).With("module", "process").WithGroup("proc")
	logger.Info("Killing process", "pid", 42, "name", "Plex Tuner Service")

	out := buf.String()
	if !strings.Contains(out, "[process] Killing process") {
		t.Errorf("missing module/message: %q", out)
	}
	if !strings.Contains(out, "proc.name=Plex Tuner Service proc.pid=42") {
		t.Errorf("missing grouped attrs: %q", out)
	}
}

func TestRingBufferTail(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		rb.Write(LogEntry{Message: msg})
	}

	all := rb.ReadAll()
	if len(all) != 3 || all[0].Message != "b" || all[2].Message != "d" {
		t.Fatalf("ReadAll() = %+v", all)
	}

	tail := rb.Tail(2)
	if len(tail) != 2 || tail[0].Message != "c" || tail[1].Message != "d" {
		t.Errorf("Tail(2) = %+v", tail)
	}
	if got := rb.Tail(0); len(got) != 3 {
		t.Errorf("Tail(0) returned %d entries, want 3", len(got))
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			switch {
			case tt.isNil && got != nil:
				t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
			case !tt.isNil && got == nil:
				t.Errorf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
			case !tt.isNil && *got != tt.want:
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}
