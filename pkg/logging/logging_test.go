package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNopLogger(t *testing.T) {
	l := OrNop(nil)
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelError} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("Expected nop logger disabled at %v", level)
		}
	}
	if _, ok := l.With("k", "v").Handler().(nopHandler); !ok {
		t.Error("Expected With to keep the nop handler")
	}

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if OrNop(custom) != custom {
		t.Error("Expected OrNop to keep a non-nil logger")
	}
}

func TestNewWritesJSONWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Options{})
	l.Info("filled", "matched", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "filled" {
		t.Errorf("Expected msg filled, got %v", rec["msg"])
	}
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		debugOn   bool
		infoOn    bool
		errorOnly bool
	}{
		{"default", Options{}, false, true, false},
		{"verbose", Options{Verbose: true}, true, true, false},
		{"quiet", Options{Quiet: true}, false, false, true},
		{"quiet wins", Options{Quiet: true, Verbose: true}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(&buf, tt.opts)
			ctx := context.Background()
			if l.Enabled(ctx, slog.LevelDebug) != tt.debugOn {
				t.Errorf("Expected debug enabled=%v", tt.debugOn)
			}
			if l.Enabled(ctx, slog.LevelInfo) != tt.infoOn {
				t.Errorf("Expected info enabled=%v", tt.infoOn)
			}
			l.Error("boom")
			if !strings.Contains(buf.String(), "boom") {
				t.Error("Expected errors to be logged at every level")
			}
		})
	}
}
