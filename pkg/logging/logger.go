package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Log levels in increasing severity
const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// parseLevel maps a level name to its rank, defaulting to info
func parseLevel(name string) int {
	switch strings.ToLower(name) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// StdLogger writes leveled text or JSON lines to a single destination
type StdLogger struct {
	mu     sync.Mutex
	out    io.Writer
	level  int
	format string
	fields []Field
}

// New creates a logger from config. The zero config logs info-level text
// to stdout.
func New(config LogConfig) (*StdLogger, error) {
	var out io.Writer
	switch config.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case "file":
		if config.FilePath == "" {
			return nil, fmt.Errorf("log output is file but file_path is empty")
		}
		f, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	default:
		return nil, fmt.Errorf("unknown log output %q", config.Output)
	}

	format := config.Format
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("unknown log format %q", config.Format)
	}

	return &StdLogger{
		out:    out,
		level:  parseLevel(config.Level),
		format: format,
	}, nil
}

// NewNop returns a logger that discards everything
func NewNop() *StdLogger {
	return &StdLogger{out: io.Discard, level: levelError + 1, format: "text"}
}

// Debug logs a debug message
func (l *StdLogger) Debug(msg string, fields ...Field) {
	l.log(levelDebug, "DEBUG", msg, fields)
}

// Info logs an info message
func (l *StdLogger) Info(msg string, fields ...Field) {
	l.log(levelInfo, "INFO", msg, fields)
}

// Warn logs a warning message
func (l *StdLogger) Warn(msg string, fields ...Field) {
	l.log(levelWarn, "WARN", msg, fields)
}

// Error logs an error message
func (l *StdLogger) Error(msg string, fields ...Field) {
	l.log(levelError, "ERROR", msg, fields)
}

// WithFields returns a new logger carrying the given fields on every entry
func (l *StdLogger) WithFields(fields ...Field) Logger {
	combined := make([]Field, 0, len(l.fields)+len(fields))
	combined = append(combined, l.fields...)
	combined = append(combined, fields...)
	return &StdLogger{
		out:    l.out,
		level:  l.level,
		format: l.format,
		fields: combined,
	}
}

// LogExecutionStart records the start of an agent execution
func (l *StdLogger) LogExecutionStart(agentID string, executionID string) {
	l.Info("execution started",
		F("agent_id", agentID),
		F("execution_id", executionID),
	)
}

// LogExecutionComplete records a finished agent execution
func (l *StdLogger) LogExecutionComplete(agentID string, executionID string, duration time.Duration) {
	l.Info("execution completed",
		F("agent_id", agentID),
		F("execution_id", executionID),
		F("duration_ms", duration.Milliseconds()),
	)
}

// LogExecutionError records a failed agent execution
func (l *StdLogger) LogExecutionError(agentID string, executionID string, err error) {
	l.Error("execution failed",
		F("agent_id", agentID),
		F("execution_id", executionID),
		F("error", err.Error()),
	)
}

// log renders and writes one entry if the level is enabled
func (l *StdLogger) log(level int, levelName string, msg string, fields []Field) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     levelName,
		Message:   msg,
	}
	if len(l.fields)+len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(l.fields)+len(fields))
		for _, f := range l.fields {
			entry.Fields[f.Key] = f.Value
		}
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	var line string
	if l.format == "json" {
		data, err := json.Marshal(entry)
		if err != nil {
			// Fall back to a plain line rather than dropping the entry
			line = fmt.Sprintf("%s %s %s", entry.Timestamp.Format(time.RFC3339), levelName, msg)
		} else {
			line = string(data)
		}
	} else {
		line = formatText(entry)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, line)
}

// formatText renders an entry as "timestamp LEVEL message key=value ..."
func formatText(entry LogEntry) string {
	var b strings.Builder
	b.WriteString(entry.Timestamp.Format(time.RFC3339))
	b.WriteString(" ")
	b.WriteString(entry.Level)
	b.WriteString(" ")
	b.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
		}
	}

	return b.String()
}
