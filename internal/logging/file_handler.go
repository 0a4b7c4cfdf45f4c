package logging

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// FileHandler is a slog.Handler that appends one formatted line per record
// to a writer. It is the supervisor's log sink: plain text, no rotation.
type FileHandler struct {
	out    *lockedWriter
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFileHandler creates a handler that writes lines to w.
func NewFileHandler(w io.Writer, level slog.Leveler) *FileHandler {
	return &FileHandler{
		out:   &lockedWriter{w: w},
		level: level,
	}
}

// Enabled implements slog.Handler.
func (h *FileHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *FileHandler) Handle(_ context.Context, r slog.Record) error {
	line := FormatLogLine(entryFromRecord(r, h.attrs, h.groups)) + "\n"

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := io.WriteString(h.out.w, line)
	return err
}

// WithAttrs implements slog.Handler.
func (h *FileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &FileHandler{
		out:    h.out,
		level:  h.level,
		attrs:  appendAttrs(h.attrs, attrs),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *FileHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &FileHandler{
		out:    h.out,
		level:  h.level,
		attrs:  h.attrs,
		groups: appendGroup(h.groups, name),
	}
}
