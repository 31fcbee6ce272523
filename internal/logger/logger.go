// Package logger provides leveled, per-component logging for warden.
// Output goes to stderr so it never mixes with operation payloads.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Level represents log level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	globalLevel   = LevelInfo
	globalColored = true
	globalOut     io.Writer = os.Stderr
	globalMu      sync.RWMutex
)

var (
	styleDebug = lipgloss.NewStyle().Foreground(lipgloss.Color("#7E9CD8")) // muted blue
	styleInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("#76946A")) // moss green
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#DCA561")) // amber
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("#C34043")) // brick red
	styleFaint = lipgloss.NewStyle().Faint(true)
)

// Logger provides leveled logging with a component prefix.
type Logger struct {
	component string
}

// New creates a logger for the named component.
func New(component string) *Logger {
	return &Logger{component: component}
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level Level) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLevel = level
}

// ParseLevel converts a string to a Level, returning an error if unrecognized.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
}

// SetColored enables or disables colored output.
func SetColored(colored bool) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalColored = colored
}

// SetOutput redirects log output. Used by tests to capture log lines.
func SetOutput(w io.Writer) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalOut = w
}

func (l *Logger) log(level Level, levelStr string, style lipgloss.Style, format string, args ...any) {
	globalMu.RLock()
	if level < globalLevel {
		globalMu.RUnlock()
		return
	}
	colored := globalColored
	out := globalOut
	globalMu.RUnlock()

	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)

	if colored {
		label := style.Render("[" + levelStr + "]")
		fmt.Fprintf(out, "%s %s %s %s\n",
			styleFaint.Render(timestamp), label, styleFaint.Render("["+l.component+"]"), msg)
	} else {
		fmt.Fprintf(out, "%s [%s] [%s] %s\n", timestamp, levelStr, l.component, msg)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LevelDebug, "DEBUG", styleDebug, format, args...)
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, "INFO", styleInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, "WARN", styleWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, "ERROR", styleError, format, args...)
}
