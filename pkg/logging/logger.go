package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger provides leveled logging for vibesurf components.
// By default logs are written to a run-specific file in ~/.vibesurf/logs/
type Logger struct {
	sessionID string
	component string
	file      *os.File
	zl        zerolog.Logger
	logPath   string
	closeOnce sync.Once
}

// Options controls how loggers created by Setup write their output.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means debug.
	Level string
	// Console writes human-readable lines to stderr instead of the log file.
	Console bool
	// Dir overrides ~/.vibesurf/logs.
	Dir string
}

var (
	// Global session ID for the current process
	sessionID     string
	sessionIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// initOnce ensures directory initialization happens once
	initOnce sync.Once

	// initErr stores any error from directory initialization
	initErr error

	optsMu sync.RWMutex
	opts   Options
)

// Setup configures every logger created afterwards. It must be called
// before the first NewLogger call to take effect on the log directory.
func Setup(o Options) {
	optsMu.Lock()
	defer optsMu.Unlock()
	opts = o
	zerolog.SetGlobalLevel(parseLevel(o.Level))
}

func currentOptions() Options {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return opts
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.DebugLevel
	}
}

// getSessionID returns or creates the session ID for this process
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		dir := currentOptions().Dir
		if dir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			dir = filepath.Join(homeDir, ".vibesurf", "logs")
		}

		if err := os.MkdirAll(dir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
		logDir = dir
	})
	return initErr
}

// NewLogger creates a new logger for a specific component.
// The logger writes to ~/.vibesurf/logs/<session-id>-vibesurf.log
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
func NewLogger(component string) (*Logger, error) {
	if currentOptions().Console {
		return newConsoleLogger(component, os.Stderr), nil
	}

	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-vibesurf.log", sessID))

	// Append mode: every component of one process shares the file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return newFallbackLogger(component, fmt.Errorf("failed to open log file: %w", err)), err
	}

	return &Logger{
		sessionID: sessID,
		component: component,
		file:      file,
		zl:        newZerolog(file, component, sessID),
		logPath:   logPath,
	}, nil
}

// MustLogger returns NewLogger's logger and drops the error; the fallback
// logger already reports the problem on stderr.
func MustLogger(component string) *Logger {
	l, _ := NewLogger(component)
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{
		sessionID: getSessionID(),
		component: "nop",
		zl:        zerolog.Nop(),
	}
}

// New wraps an arbitrary writer. Used by tests and by the TUI, which must
// keep stderr clean.
func New(w io.Writer, component string) *Logger {
	return &Logger{
		sessionID: getSessionID(),
		component: component,
		zl:        newZerolog(w, component, getSessionID()),
	}
}

func newZerolog(w io.Writer, component, sessID string) zerolog.Logger {
	return zerolog.New(w).With().
		Timestamp().
		Str("component", component).
		Str("session", sessID).
		Logger()
}

func newConsoleLogger(component string, w io.Writer) *Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return &Logger{
		sessionID: getSessionID(),
		component: component,
		zl:        zerolog.New(cw).With().Timestamp().Str("component", component).Logger(),
	}
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	l := newConsoleLogger(component, os.Stderr)
	l.zl.Warn().Err(err).Msg("failed to initialize file logging, falling back to stderr")
	return l
}

// With returns a child logger that adds a key/value to every entry.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		component: l.component,
		file:      l.file,
		zl:        l.zl.With().Str(key, value).Logger(),
		logPath:   l.logPath,
	}
}

// Zerolog exposes the underlying logger for structured fields.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

// Printf logs a formatted message at info level
func (l *Logger) Printf(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.zl.Debug().Msgf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.zl.Warn().Msgf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.zl.Error().Msgf(format, v...)
}

// Writer returns an io.Writer that writes to this logger's destination
func (l *Logger) Writer() io.Writer {
	if l.file != nil {
		return l.file
	}
	return os.Stderr
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetSessionID returns the current global session ID
func GetSessionID() string {
	return getSessionID()
}

// GetLogDirectory returns the directory where logs are stored
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
