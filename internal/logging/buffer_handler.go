package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// LogCallback is called when a new log entry is written.
type LogCallback func(entry LogEntry)

// BufferHandler is a slog.Handler that writes to a ring buffer
// and optionally calls a callback for each log entry.
type BufferHandler struct {
	buffer   *RingBuffer
	level    slog.Leveler
	attrs    []slog.Attr
	groups   []string
	callback LogCallback
}

// NewBufferHandler creates a handler that writes to the given ring buffer.
func NewBufferHandler(buffer *RingBuffer, level slog.Leveler, callback LogCallback) *BufferHandler {
	return &BufferHandler{
		buffer:   buffer,
		level:    level,
		callback: callback,
	}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	entry := entryFromRecord(r, h.attrs, h.groups)

	h.buffer.Write(entry)

	if h.callback != nil {
		h.callback(entry)
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BufferHandler{
		buffer:   h.buffer,
		level:    h.level,
		attrs:    appendAttrs(h.attrs, attrs),
		groups:   h.groups,
		callback: h.callback,
	}
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &BufferHandler{
		buffer:   h.buffer,
		level:    h.level,
		attrs:    h.attrs,
		groups:   appendGroup(h.groups, name),
		callback: h.callback,
	}
}

// entryFromRecord converts a record plus handler-level attrs into a LogEntry.
// The "module" attribute is lifted out of the attribute map.
func entryFromRecord(r slog.Record, handlerAttrs []slog.Attr, groups []string) LogEntry {
	attrs := make(map[string]any)
	module := "app"

	for _, a := range handlerAttrs {
		if a.Key == "module" {
			module = a.Value.String()
		} else {
			flattenAttr(attrs, groups, a)
		}
	}

	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "module" {
			module = a.Value.String()
		} else {
			flattenAttr(attrs, groups, a)
		}
		return true
	})

	return LogEntry{
		Timestamp:  r.Time,
		Level:      levelToString(r.Level),
		Module:     module,
		Message:    r.Message,
		Attributes: attrs,
	}
}

// flattenAttr extracts a slog.Attr into a flat map with dot-notation keys for groups.
func flattenAttr(attrs map[string]any, groups []string, a slog.Attr) {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			flattenAttr(attrs, appendGroup(groups, a.Key), ga)
		}
	case slog.KindTime:
		attrs[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		attrs[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			attrs[key] = err.Error()
		} else {
			attrs[key] = a.Value.Any()
		}
	default:
		attrs[key] = a.Value.Any()
	}
}

func appendAttrs(existing, attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(existing)+len(attrs))
	copy(out, existing)
	copy(out[len(existing):], attrs)
	return out
}

func appendGroup(groups []string, name string) []string {
	out := make([]string, len(groups)+1)
	copy(out, groups)
	out[len(groups)] = name
	return out
}

// levelToString converts slog.Level to a lowercase string.
func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// FormatLogLine formats a LogEntry as a single human-readable line:
// timestamp, level, module, message, then attributes sorted by key.
func FormatLogLine(entry LogEntry) string {
	var sb strings.Builder
	sb.WriteString(entry.Timestamp.Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(strings.ToUpper(entry.Level))
	sb.WriteString("] [")
	sb.WriteString(entry.Module)
	sb.WriteString("] ")
	sb.WriteString(entry.Message)

	if len(entry.Attributes) > 0 {
		keys := make([]string, 0, len(entry.Attributes))
		for k := range entry.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(" ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(fmt.Sprint(entry.Attributes[k]))
		}
	}

	return sb.String()
}
