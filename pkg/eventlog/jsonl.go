package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/logging"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

// JSONLSink appends one JSON object per event to a file.
type JSONLSink struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	logger *logging.Logger
	failed int
}

// OpenJSONL opens path for appending, creating parent directories.
func OpenJSONL(path string, logger *logging.Logger) (*JSONLSink, error) {
	if path == "" {
		return nil, fmt.Errorf("path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &JSONLSink{path: path, f: f, logger: logger}, nil
}

// Path returns the file being written.
func (s *JSONLSink) Path() string {
	return s.path
}

// Publish implements Sink. Write errors are logged and counted; the event
// is not retried.
func (s *JSONLSink) Publish(ev types.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Errorf("marshal event for task %s: %v", ev.TaskID, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return
	}
	if _, err := s.f.Write(append(data, '\n')); err != nil {
		s.failed++
		s.logger.Errorf("append event to %s: %v", s.path, err)
	}
}

// Failed returns the number of events that could not be written.
func (s *JSONLSink) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Close syncs and closes the file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	syncErr := s.f.Sync()
	closeErr := s.f.Close()
	s.f = nil
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// ReadEvents loads every event from a JSON lines file.
func ReadEvents(path string) ([]types.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	events := []types.Event{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev types.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("parse event line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return events, nil
}
