package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fileLogger(t *testing.T, level string) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.log")
	logger := New(&Config{Level: level, Output: path, Component: "test", JSONFormat: true})
	return logger, path
}

func readEntries(t *testing.T, path string) []LogEntry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Cannot read log output: %v", err)
	}
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("Cannot parse log line %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

// TestKeyValueFields tests that variadic args become structured fields
func TestKeyValueFields(t *testing.T) {
	logger, path := fileLogger(t, "INFO")

	logger.Info("Bar processed", "symbol", "VNM", "bars", 17)

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Message != "Bar processed" {
		t.Errorf("Message must stay verbatim, got %q", e.Message)
	}
	if e.Fields["symbol"] != "VNM" {
		t.Errorf("Expected symbol field VNM, got %v", e.Fields["symbol"])
	}
	if e.Fields["bars"] != float64(17) {
		t.Errorf("Expected bars field 17, got %v", e.Fields["bars"])
	}
}

// TestPercentInMessage tests that format verbs in messages are literal
func TestPercentInMessage(t *testing.T) {
	logger, path := fileLogger(t, "INFO")

	logger.Warn("Position size 10% of capital", "symbol", "VNM")

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "Position size 10% of capital" {
		t.Errorf("Percent signs must not be interpreted, got %q", entries[0].Message)
	}
}

// TestErrorValuesFlattened tests that error values log as their message
func TestErrorValuesFlattened(t *testing.T) {
	logger, path := fileLogger(t, "INFO")

	logger.Error("Save failed", "error", fmt.Errorf("connection refused"))

	entries := readEntries(t, path)
	if entries[0].Fields["error"] != "connection refused" {
		t.Errorf("Expected flattened error string, got %v", entries[0].Fields["error"])
	}
}

// TestLevelFiltering tests that entries below the threshold are dropped
func TestLevelFiltering(t *testing.T) {
	logger, path := fileLogger(t, "WARN")

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept")

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Message != "kept" {
			t.Errorf("Unexpected entry %q", e.Message)
		}
	}
}

// TestWithFieldAndComponent tests field and component inheritance
func TestWithFieldAndComponent(t *testing.T) {
	logger, path := fileLogger(t, "INFO")

	child := logger.WithComponent("pipeline").WithField("symbol", "FPT")
	child.Info("Worker started")

	entries := readEntries(t, path)
	e := entries[0]
	if e.Component != "pipeline" {
		t.Errorf("Expected component pipeline, got %q", e.Component)
	}
	if e.Fields["symbol"] != "FPT" {
		t.Errorf("Expected inherited symbol field, got %v", e.Fields["symbol"])
	}
}
