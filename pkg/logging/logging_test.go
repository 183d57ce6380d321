package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" INFO ", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("verbose"); err == nil {
		t.Fatalf("Validate(verbose): expected error")
	}
	if err := ValidateFormat("xml"); err == nil {
		t.Fatalf("ValidateFormat(xml): expected error")
	}
	if _, err := NewHandler(Options{Format: "xml"}); err == nil {
		t.Fatalf("NewHandler: expected format error")
	}
}

func TestNewHandlerFormats(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{"json", func(t *testing.T, out string) {
			var rec map[string]any
			if err := json.Unmarshal([]byte(out), &rec); err != nil {
				t.Fatalf("json output not parseable: %v (%q)", err, out)
			}
			if rec["msg"] != "hello" || rec["user"] != "alice" {
				t.Fatalf("unexpected record %v", rec)
			}
		}},
		{"text", func(t *testing.T, out string) {
			if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "user=alice") {
				t.Fatalf("unexpected text output %q", out)
			}
		}},
		{"pretty", func(t *testing.T, out string) {
			if !strings.Contains(out, "hello") || !strings.Contains(out, "user=alice") {
				t.Fatalf("unexpected pretty output %q", out)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			h, err := NewHandler(Options{Level: "info", Format: tt.format, Output: &buf})
			if err != nil {
				t.Fatalf("NewHandler: %v", err)
			}
			logger := slog.New(h)
			logger.Debug("hidden")
			logger.Info("hello", "user", "alice")
			tt.check(t, buf.String())
			if strings.Contains(buf.String(), "hidden") {
				t.Fatalf("debug record leaked at info level")
			}
		})
	}
}
