package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// pathKeys contains attribute keys whose values are file system paths.
var pathKeys = map[string]bool{
	"path":   true,
	"root":   true,
	"target": true,
	"dir":    true,
	"file":   true,
}

// PathHandler wraps an slog.Handler to make path attributes safe to print.
// Control and non-printable characters in path values are escaped, and
// paths under the configured root are optionally shown relative to it.
type PathHandler struct {
	handler slog.Handler
	root    string
}

// HandlerOption configures a PathHandler.
type HandlerOption func(*PathHandler)

// WithRoot shows paths under root relative to it. An empty root keeps
// paths as they are.
func WithRoot(root string) HandlerOption {
	return func(h *PathHandler) {
		if root != "" {
			h.root = filepath.Clean(root)
		}
	}
}

// NewPathHandler creates a new PathHandler wrapping the given handler.
// If handler is nil, slog.Default().Handler() is used.
func NewPathHandler(handler slog.Handler, opts ...HandlerOption) *PathHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	h := &PathHandler{handler: handler}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enabled reports whether the handler handles records at the given level.
func (h *PathHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle rewrites path attributes and passes the record on.
func (h *PathHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, EscapePath(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.rewrite(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

// WithAttrs returns a new PathHandler whose attributes are rewritten first.
func (h *PathHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	rewritten := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		rewritten[i] = h.rewrite(a)
	}
	return &PathHandler{handler: h.handler.WithAttrs(rewritten), root: h.root}
}

// WithGroup returns a new PathHandler with the given group name.
func (h *PathHandler) WithGroup(name string) slog.Handler {
	return &PathHandler{handler: h.handler.WithGroup(name), root: h.root}
}

func (h *PathHandler) rewrite(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		rewritten := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			rewritten[i] = h.rewrite(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(rewritten...)}
	}

	if a.Value.Kind() != slog.KindString || !isPathKey(a.Key) {
		return a
	}
	return slog.String(a.Key, EscapePath(h.relative(a.Value.String())))
}

func (h *PathHandler) relative(p string) string {
	if h.root == "" || p == "" {
		return p
	}
	rel, err := filepath.Rel(h.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return rel
}

// EscapePath returns p with control and non-printable characters replaced
// by Go escape sequences. Printable text, including non-ASCII letters, is
// kept as is. Bytes that are not valid UTF-8 are written as \xNN.
func EscapePath(p string) string {
	if isPrintable(p) {
		return p
	}

	var b strings.Builder
	for i := 0; i < len(p); {
		r, size := utf8.DecodeRuneInString(p[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			fmt.Fprintf(&b, "\\x%02x", p[i])
		case !unicode.IsPrint(r):
			q := strconv.QuoteRuneToASCII(r)
			b.WriteString(q[1 : len(q)-1])
		default:
			b.WriteString(p[i : i+size])
		}
		i += size
	}
	return b.String()
}

func isPrintable(p string) bool {
	if !utf8.ValidString(p) {
		return false
	}
	for _, r := range p {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func isPathKey(key string) bool {
	k := strings.ToLower(key)
	return pathKeys[k] || strings.HasSuffix(k, "path")
}

// Option configures a logger created by NewLogger or NewJSONLogger.
type Option = HandlerOption

func level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// NewLogger creates a new text slog.Logger with path escaping.
//
// Parameters:
//   - w: The io.Writer to write log output to (typically os.Stderr)
//   - verbose: If true, sets log level to Debug; otherwise Warn
func NewLogger(w io.Writer, verbose bool, opts ...Option) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level(verbose)})
	return slog.New(NewPathHandler(handler, opts...))
}

// NewJSONLogger creates a new slog.Logger with path escaping that outputs
// JSON. Useful for structured log aggregation.
func NewJSONLogger(w io.Writer, verbose bool, opts ...Option) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level(verbose)})
	return slog.New(NewPathHandler(handler, opts...))
}
