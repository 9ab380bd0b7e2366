package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestEscapePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain path", "/srv/data/disk.img", "/srv/data/disk.img"},
		{"spaces kept", "/srv/my files/a b", "/srv/my files/a b"},
		{"non-ascii letters kept", "/srv/データ/é.bin", "/srv/データ/é.bin"},
		{"newline escaped", "/srv/a\nb", `/srv/a\nb`},
		{"tab escaped", "/srv/a\tb", `/srv/a\tb`},
		{"terminal escape", "/srv/\x1b[31mred", `/srv/\x1b[31mred`},
		{"invalid utf-8 byte", "/srv/\xffname", `/srv/\xffname`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := EscapePath(tt.in); got != tt.want {
				t.Errorf("EscapePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPathHandler_EscapesPathAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, true)

	logger.Info("found", "path", "/srv/evil\nname", "count", 3, "note", "line\nbreak")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON log line: %v\n%s", err, buf.String())
	}
	if rec["path"] != `/srv/evil\nname` {
		t.Errorf("expected escaped path, got %q", rec["path"])
	}
	// Non-path attributes are left to the underlying handler.
	if rec["note"] != "line\nbreak" {
		t.Errorf("expected note untouched, got %q", rec["note"])
	}
	if rec["count"] != float64(3) {
		t.Errorf("expected count 3, got %v", rec["count"])
	}
}

func TestPathHandler_KeySuffix(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, true)

	logger.Info("moved", "old_path", "/a\x07b")

	if !strings.Contains(buf.String(), `/a\ab`) {
		t.Errorf("expected escaped bell in output, got %q", buf.String())
	}
}

func TestPathHandler_WithRoot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want string
	}{
		{"under root", "/srv/data/disk.img", "disk.img"},
		{"nested under root", "/srv/data/vol/disk.img", "vol/disk.img"},
		{"root itself", "/srv/data", "."},
		{"outside root", "/home/user/x", "/home/user/x"},
		{"sibling prefix", "/srv/database/x", "/srv/database/x"},
		{"relative path", "x/y", "x/y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewJSONLogger(&buf, true, WithRoot("/srv/data/"))
			logger.Info("entry", "path", tt.path)

			var rec map[string]any
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if rec["path"] != tt.want {
				t.Errorf("path = %q, want %q", rec["path"], tt.want)
			}
		})
	}
}

func TestPathHandler_LogLevels(t *testing.T) {
	t.Parallel()

	t.Run("non-verbose hides info and debug", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger := NewLogger(&buf, false)
		logger.Debug("debug message")
		logger.Info("info message")
		logger.Warn("warn message")

		out := buf.String()
		if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
			t.Errorf("expected only warnings, got %q", out)
		}
		if !strings.Contains(out, "warn message") {
			t.Errorf("expected warn message, got %q", out)
		}
	})

	t.Run("verbose shows debug", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger := NewLogger(&buf, true)
		logger.Debug("debug message")

		if !strings.Contains(buf.String(), "debug message") {
			t.Errorf("expected debug message, got %q", buf.String())
		}
	})
}

func TestPathHandler_WithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, true, WithRoot("/srv")).With("root", "/srv/x\ty")
	logger.Info("scan")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if rec["root"] != `x\ty` {
		t.Errorf("root = %q, want %q", rec["root"], `x\ty`)
	}
}

func TestPathHandler_WithGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, true).WithGroup("job")
	logger.Info("done", slog.Group("entry", slog.String("path", "/a\nb")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	job, ok := rec["job"].(map[string]any)
	if !ok {
		t.Fatalf("expected job group, got %v", rec)
	}
	entry, ok := job["entry"].(map[string]any)
	if !ok {
		t.Fatalf("expected entry group, got %v", job)
	}
	if entry["path"] != `/a\nb` {
		t.Errorf("path = %q", entry["path"])
	}
}

func TestNewPathHandler_NilHandler(t *testing.T) {
	t.Parallel()

	h := NewPathHandler(nil)
	if h.handler == nil {
		t.Fatal("expected default handler")
	}
}
