package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("info", "json", &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.Debug().Msg("hidden")
	log.Info().Str("user_id", "u-1").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected one log line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["message"] != "visible" || entry["user_id"] != "u-1" {
		t.Errorf("unexpected entry %v", entry)
	}
	if _, ok := entry["caller"]; !ok {
		t.Error("expected caller field")
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "console", &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.Debug().Msg("hello console")
	if !strings.Contains(buf.String(), "hello console") {
		t.Errorf("console output missing message: %q", buf.String())
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New("loud", "json", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown level")
	}
}
