// Package logger builds the slog loggers used by the linkpath binaries.
//
// Text output to a terminal is colored: errors red, warnings yellow, and
// remote fetch and cache activity green so it stands out while tracing a
// search.
package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// highlighted messages are shown in green.
var highlighted = []string{"fetched", "cache", "search completed"}

// Config selects the logger output.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Output io.Writer
}

// New creates a logger from cfg. Output defaults to stderr.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(NewColorHandler(out, opts, isTerminal(out)))
}

// NewDefaultLogger creates a colored text logger on stderr.
func NewDefaultLogger(level slog.Level) *slog.Logger {
	return slog.New(NewColorHandler(os.Stderr, &slog.HandlerOptions{Level: level}, isTerminal(os.Stderr)))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
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

// ColorHandler formats records like slog.TextHandler and wraps each line in
// an ANSI color chosen from its level and message.
type ColorHandler struct {
	inner slog.Handler
	buf   *bytes.Buffer
	mu    *sync.Mutex
	out   io.Writer
	color bool
}

// NewColorHandler creates a ColorHandler writing to out. When color is false
// the output is identical to slog.TextHandler.
func NewColorHandler(out io.Writer, opts *slog.HandlerOptions, color bool) *ColorHandler {
	buf := &bytes.Buffer{}
	return &ColorHandler{
		inner: slog.NewTextHandler(buf, opts),
		buf:   buf,
		mu:    &sync.Mutex{},
		out:   out,
		color: color,
	}
}

func (h *ColorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ColorHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf.Reset()
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	code := ""
	if h.color {
		code = colorFor(r)
	}
	if code == "" {
		_, err := h.out.Write(h.buf.Bytes())
		return err
	}

	line := bytes.TrimRight(h.buf.Bytes(), "\n")
	var colored bytes.Buffer
	colored.Grow(len(line) + len(code) + len(colorReset) + 1)
	colored.WriteString(code)
	colored.Write(line)
	colored.WriteString(colorReset)
	colored.WriteByte('\n')
	_, err := h.out.Write(colored.Bytes())
	return err
}

func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.inner = h.inner.WithAttrs(attrs)
	return &c
}

func (h *ColorHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.inner = h.inner.WithGroup(name)
	return &c
}

func colorFor(r slog.Record) string {
	switch {
	case r.Level >= slog.LevelError:
		return colorRed
	case r.Level >= slog.LevelWarn:
		return colorYellow
	}
	msg := strings.ToLower(r.Message)
	for _, h := range highlighted {
		if strings.Contains(msg, h) {
			return colorGreen
		}
	}
	return ""
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
