package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{} // default level
	isInitialized   bool
	mutex           sync.RWMutex
	logBuffer       *RingBuffer
	logCallback     LogCallback
	sinkFile        *os.File
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	File    string            `toml:"file"`
	Console bool              `toml:"console"`
	Modules map[string]string `toml:"modules"`
}

// Initialize sets up the logging system. It may be called again to
// reconfigure outputs; the previous log file is closed in that case.
// A log file that cannot be opened is reported but does not prevent the
// remaining outputs from being configured.
func Initialize(config Config) error {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	// Create ring buffer for log history
	logBuffer = NewRingBuffer(defaultBufferSize)

	var openErr error
	if sinkFile != nil {
		_ = sinkFile.Close()
		sinkFile = nil
	}
	if config.File != "" {
		f, err := os.OpenFile(config.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			openErr = fmt.Errorf("open log file %s: %w", config.File, err)
		} else {
			sinkFile = f
		}
	}

	// Parse and set global level
	globalLevel := parseLevel(config.Level)
	if globalLevel == nil {
		defaultLevel := slog.LevelInfo
		globalLevel = &defaultLevel
	}
	globalLevelVar.Set(*globalLevel)

	// Existing module loggers keep their LevelVar so handles obtained before
	// Initialize still see level changes; their handlers are rebuilt so new
	// lookups write to the configured outputs.
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(module, *globalLevel))
		moduleLoggers[module] = slog.New(createHandler(levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(globalLevelVar)))

	return openErr
}

// SetLevels changes the global and per-module levels at runtime without
// touching the configured outputs.
func SetLevels(level string, modules map[string]string) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig.Level = level
	globalConfig.Modules = modules

	globalLevel := slog.LevelInfo
	if parsed := parseLevel(level); parsed != nil {
		globalLevel = *parsed
	}
	globalLevelVar.Set(globalLevel)

	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(module, globalLevel))
	}
}

// Close flushes and closes the log file, if one is open.
func Close() error {
	mutex.Lock()
	defer mutex.Unlock()
	if sinkFile == nil {
		return nil
	}
	err := sinkFile.Close()
	sinkFile = nil
	return err
}

// GetBuffer returns the log ring buffer for reading historical logs.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback sets a callback to be called for each new log entry.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	// Double-check in case another goroutine created it
	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	if isInitialized {
		globalLevel := slog.LevelInfo
		if parsed := parseLevel(globalConfig.Level); parsed != nil {
			globalLevel = *parsed
		}
		levelVar.Set(moduleLevel(module, globalLevel))
	} else {
		levelVar.Set(slog.LevelInfo)
	}

	logger := slog.New(createHandler(levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// moduleLevel returns the configured level for module, or fallback (must hold lock).
func moduleLevel(module string, fallback slog.Level) slog.Level {
	if levelStr, exists := globalConfig.Modules[module]; exists {
		if parsed := parseLevel(levelStr); parsed != nil {
			return *parsed
		}
	}
	return fallback
}

// createHandler creates a slog handler for the configured outputs (must hold lock).
// The log file is the primary sink. Stdout is used when console echo is
// enabled, or as a last resort when nothing else would record the entry.
func createHandler(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if globalConfig.Format == "json" {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler

	if sinkFile != nil {
		handlers = append(handlers, NewFileHandler(sinkFile, level))
	}

	journalAvailable := IsJournalAvailable()
	if journalAvailable {
		handlers = append(handlers, NewJournalHandler(level))
	}

	if (globalConfig.Console || len(handlers) == 0) && isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}

	if logBuffer != nil {
		handlers = append(handlers, NewBufferHandler(logBuffer, level, logCallback))
	}

	switch len(handlers) {
	case 0:
		return stdoutHandler // Fallback
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	// Available if terminal, pipe, socket, or regular file (not /dev/null which is ModeDevice)
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		l := slog.LevelDebug
		return &l
	case "info":
		l := slog.LevelInfo
		return &l
	case "warn", "warning":
		l := slog.LevelWarn
		return &l
	case "error":
		l := slog.LevelError
		return &l
	default:
		return nil
	}
}
