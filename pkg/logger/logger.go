// Package logger provides slog handlers for terminal output. The color
// handler tints records by level so warnings and errors stand out in long
// ingestion runs.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ANSI escape sequences.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// ColorHandler is a slog.Handler writing human-readable colored lines.
// It is safe for concurrent use.
type ColorHandler struct {
	opts  slog.HandlerOptions
	attrs []slog.Attr
	group string

	mu  *sync.Mutex
	out io.Writer
}

// NewColorHandler creates a handler writing to out. A nil opts uses
// slog.LevelInfo.
func NewColorHandler(out io.Writer, opts *slog.HandlerOptions) *ColorHandler {
	h := &ColorHandler{
		mu:  &sync.Mutex{},
		out: out,
	}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	return h
}

// NewDefaultLogger returns a color logger on stderr at the given level.
func NewDefaultLogger(level slog.Level) *slog.Logger {
	return slog.New(NewColorHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Enabled implements slog.Handler.
func (h *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle implements slog.Handler.
func (h *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	color := levelColor(r.Level, r.Message)

	var b strings.Builder
	b.WriteString(r.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(color)
	b.WriteString(r.Level.String())
	b.WriteString(colorReset)
	b.WriteByte(' ')
	b.WriteString(color)
	b.WriteString(r.Message)
	b.WriteString(colorReset)

	for _, a := range h.attrs {
		writeAttr(&b, h.group, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup implements slog.Handler.
func (h *ColorHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "."
	}
	clone.group += name
	return &clone
}

// levelColor picks the tint: red for errors, yellow for warnings, green for
// persistence progress, gray for debug.
func levelColor(level slog.Level, message string) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level < slog.LevelInfo:
		return colorGray
	case strings.HasPrefix(message, "Persisting"):
		return colorGreen
	default:
		return ""
	}
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteByte(' ')
	b.WriteString(colorGray)
	if group != "" {
		b.WriteString(group)
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(fmt.Sprintf("%v", a.Value.Resolve()))
	b.WriteString(colorReset)
}
