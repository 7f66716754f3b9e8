// Package logger configures the process-wide slog logger.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Level     slog.Level
	Format    string
	Output    io.Writer
	AddSource bool
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: false,
	}
}

// ParseLevel maps debug/info/warn/error to a level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// ForComponent returns a logger tagged with component. It follows whatever
// handler is installed by Init, even when created before Init runs.
func ForComponent(component string) *slog.Logger {
	return slog.New(&deferred{attrs: []slog.Attr{slog.String("component", component)}})
}

// deferred resolves slog.Default's handler at log time.
type deferred struct {
	attrs  []slog.Attr
	groups []string
}

func (d *deferred) resolve() slog.Handler {
	h := slog.Default().Handler()
	if len(d.attrs) > 0 {
		h = h.WithAttrs(d.attrs)
	}
	for _, g := range d.groups {
		h = h.WithGroup(g)
	}
	return h
}

func (d *deferred) Enabled(ctx context.Context, level slog.Level) bool {
	return slog.Default().Handler().Enabled(ctx, level)
}

func (d *deferred) Handle(ctx context.Context, r slog.Record) error {
	return d.resolve().Handle(ctx, r)
}

func (d *deferred) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(d.groups) > 0 {
		return d.resolve().WithAttrs(attrs)
	}
	next := &deferred{attrs: append(append([]slog.Attr{}, d.attrs...), attrs...)}
	return next
}

func (d *deferred) WithGroup(name string) slog.Handler {
	return &deferred{attrs: d.attrs, groups: append(append([]string{}, d.groups...), name)}
}
