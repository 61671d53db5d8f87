package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// setupTestDir points the logger at a temporary directory and resets global state
func setupTestDir(t *testing.T) {
	t.Helper()

	tempDir := t.TempDir()

	optsMu.Lock()
	origOpts := opts
	opts = Options{Dir: tempDir}
	optsMu.Unlock()

	logDir = ""
	initErr = nil
	initOnce = sync.Once{}
	sessionID = ""
	sessionIDOnce = sync.Once{}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	t.Cleanup(func() {
		optsMu.Lock()
		opts = origOpts
		optsMu.Unlock()
		logDir = ""
		initErr = nil
		initOnce = sync.Once{}
	})
}

func readEntries(t *testing.T, path string) []map[string]interface{} {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q", line)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test-component")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.component != "test-component" {
		t.Errorf("Expected component 'test-component', got %q", logger.component)
	}

	if logger.sessionID == "" {
		t.Error("Expected non-empty session ID")
	}

	if _, err := os.Stat(logger.logPath); os.IsNotExist(err) {
		t.Errorf("Log file does not exist at %s", logger.logPath)
	}
}

func TestLoggerLevels(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	logger.Printf("Test message %d", 123)
	logger.Debugf("Debug message")
	logger.Infof("Info message")
	logger.Warnf("Warning message")
	logger.Errorf("Error message")

	entries := readEntries(t, logger.logPath)
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	want := []struct {
		level   string
		message string
	}{
		{"info", "Test message 123"},
		{"debug", "Debug message"},
		{"info", "Info message"},
		{"warn", "Warning message"},
		{"error", "Error message"},
	}
	for i, w := range want {
		if entries[i]["level"] != w.level {
			t.Errorf("entry %d level = %v, want %s", i, entries[i]["level"], w.level)
		}
		if entries[i]["message"] != w.message {
			t.Errorf("entry %d message = %v, want %s", i, entries[i]["message"], w.message)
		}
		if entries[i]["component"] != "test" {
			t.Errorf("entry %d component = %v, want test", i, entries[i]["component"])
		}
	}
}

func TestMultipleComponents(t *testing.T) {
	setupTestDir(t)

	logger1, err := NewLogger("component1")
	if err != nil {
		t.Fatalf("Failed to create logger1: %v", err)
	}
	defer logger1.Close()

	logger2, err := NewLogger("component2")
	if err != nil {
		t.Fatalf("Failed to create logger2: %v", err)
	}
	defer logger2.Close()

	if logger1.sessionID != logger2.sessionID {
		t.Errorf("Expected same session ID, got %q and %q", logger1.sessionID, logger2.sessionID)
	}
	if logger1.logPath != logger2.logPath {
		t.Errorf("Expected same log path, got %q and %q", logger1.logPath, logger2.logPath)
	}

	logger1.Infof("Message from component1")
	logger2.Infof("Message from component2")

	seen := map[interface{}]bool{}
	for _, e := range readEntries(t, logger1.logPath) {
		seen[e["component"]] = true
	}
	if !seen["component1"] || !seen["component2"] {
		t.Errorf("expected entries from both components, got %v", seen)
	}
}

func TestLevelFilter(t *testing.T) {
	setupTestDir(t)
	Setup(Options{Dir: currentOptions().Dir, Level: "warn"})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.DebugLevel) })

	var buf bytes.Buffer
	logger := New(&buf, "filtered")
	logger.Debugf("hidden")
	logger.Infof("hidden")
	logger.Warnf("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug and info to be filtered, got %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("expected warn entry, got %s", out)
	}
}

func TestWithAddsField(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "orchestrator").With("task_id", "t-1")
	logger.Infof("dispatch")

	if !strings.Contains(buf.String(), `"task_id":"t-1"`) {
		t.Errorf("expected task_id field, got %s", buf.String())
	}
}

func TestNopDiscards(t *testing.T) {
	logger := Nop()
	logger.Errorf("nothing %s", "here")
	if err := logger.Close(); err != nil {
		t.Errorf("Close on nop logger failed: %v", err)
	}
}

func TestGetLogDirectory(t *testing.T) {
	setupTestDir(t)

	dir, err := GetLogDirectory()
	if err != nil {
		t.Fatalf("Failed to get log directory: %v", err)
	}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("Log directory does not exist or is not a directory: %s", dir)
	}
}

func TestLoggerClose(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestLogPathFormat(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	fileName := filepath.Base(logger.logPath)
	if !strings.HasSuffix(fileName, "-vibesurf.log") {
		t.Errorf("Expected log file to end with '-vibesurf.log', got %q", fileName)
	}

	sessionPart := strings.TrimSuffix(fileName, "-vibesurf.log")
	if !strings.Contains(sessionPart, "-") {
		t.Errorf("Expected session ID part to contain dashes (UUID format), got %q", sessionPart)
	}
}
