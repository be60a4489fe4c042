// Package klog provides the toolchain's structured logging, a small
// wrapper around log/slog modeled on smoynes-elsie's internal/log: a
// Handler that writes aligned, human-readable records to a writer, with a
// package-level level variable flags can raise at runtime.
package klog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

var defaultWriter io.Writer = os.Stderr

var (
	// Level is shared by every logger created with New; -v/-debug flags
	// raise it at startup.
	Level = &slog.LevelVar{}

	// Default is the toolchain's package-level logger, writing to stderr
	// at the current Level.
	Default = func() *slog.Logger { return New(nil) }
)

// New returns a logger writing formatted records to out (os.Stderr if nil).
func New(out io.Writer) *slog.Logger {
	if out == nil {
		out = defaultWriter
	}
	return slog.New(&handler{out: out, mu: &sync.Mutex{}, level: Level})
}

// handler implements slog.Handler with a compact "time level msg key=val"
// line format; it exists to avoid pulling in a third-party logging library
// that nothing else in the pack uses (see SPEC_FULL.md's ambient-stack
// rationale).
type handler struct {
	out   io.Writer
	mu    *sync.Mutex
	level slog.Leveler
	attrs []slog.Attr
	group string
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *handler) Handle(_ context.Context, rec slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(h.out, "%s %-5s %s", rec.Time.Format(time.TimeOnly), rec.Level, rec.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(h.out, " %s=%v", a.Key, a.Value)
	}
	rec.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.out, " %s=%v", a.Key, a.Value)
		return true
	})
	fmt.Fprintln(h.out)
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{out: h.out, mu: h.mu, level: h.level, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...), group: h.group}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{out: h.out, mu: h.mu, level: h.level, attrs: h.attrs, group: name}
}
