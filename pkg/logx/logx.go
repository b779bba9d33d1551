// Package logx provides structured leveled logging for the workflow system.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger writes leveled, component-tagged log lines to stderr and mirrors
// them into an in-memory buffer that UI/CLI observers can read.
type Logger struct {
	component string
	logger    *log.Logger
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is a structured log record kept in the in-memory buffer.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Buffer stores the most recent log entries for observers.
type Buffer struct {
	entries []Entry
	mu      sync.RWMutex
	maxSize int
}

//nolint:gochecknoglobals // process-wide log buffer shared by all loggers
var (
	buffer = &Buffer{maxSize: 1000}

	debugEnabled = func() bool {
		v := os.Getenv("DEBUG")
		return v == "1" || strings.EqualFold(v, "true")
	}()
)

func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0), // stderr keeps stdout clean for CLI output
	}
}

func (b *Buffer) add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, e)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

// Recent returns a copy of buffered entries at or after since.
func (b *Buffer) Recent(since time.Time) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, 0, len(b.entries))
	for i := range b.entries {
		if !since.IsZero() {
			ts, err := time.Parse(timestampLayout, b.entries[i].Timestamp)
			if err != nil || ts.Before(since) {
				continue
			}
		}
		out = append(out, b.entries[i])
	}
	return out
}

// RecentEntries returns recent entries from the shared buffer.
func RecentEntries(since time.Time) []Entry {
	return buffer.Recent(since)
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format(timestampLayout)
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.component, level, message)

	buffer.add(Entry{
		Timestamp: timestamp,
		Component: l.component,
		Level:     string(level),
		Message:   message,
	})
}

func (l *Logger) Debug(format string, args ...any) {
	if !debugEnabled {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// WithComponent returns a logger that tags lines with a different component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component, logger: l.logger}
}

func (l *Logger) Component() string {
	return l.component
}

//nolint:gochecknoglobals // package-level convenience logger
var defaultLogger = NewLogger("system")

func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error so call sites can do both at once.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + err and returns fmt.Errorf("%s: %w", msg, err).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
