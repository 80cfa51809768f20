// Package logging provides levelled console logging for blogcrew runs.
// Log lines go to stderr so the generated post on stdout stays clean.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Fields are structured key/value pairs attached to a log line.
type Fields map[string]interface{}

// Logger provides structured logging.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	runID     string
}

var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a Logger writing INFO and above to stderr.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stderr,
		minLevel: LevelInfo,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l := New()
	l.output = io.Discard
	return l
}

// ParseLevel converts a case-insensitive level name. Unknown names are an error.
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(s)))
	if level == "WARNING" {
		level = LevelWarn
	}
	if _, ok := levelPriority[level]; !ok {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// WithComponent returns a logger tagged with the given component name.
// The returned logger shares output and lock with its parent.
func (l *Logger) WithComponent(component string) *Logger {
	c := *l
	c.component = component
	return &c
}

// WithRunID returns a logger that stamps every line with a run ID.
func (l *Logger) WithRunID(runID string) *Logger {
	c := *l
	c.runID = runID
	return &c
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(LevelError, msg, fields...)
}

// formatFields renders fields as sorted key=value pairs.
func formatFields(fields Fields) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := fmt.Sprintf("%v", fields[k])
		if strings.ContainsAny(v, " \t\n\"") {
			v = fmt.Sprintf("%q", v)
		}
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(v)
	}
	return b.String()
}

// log writes: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...Fields) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	merged := Fields{}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	if l.runID != "" {
		merged["run"] = l.runID
	}
	fieldStr := formatFields(merged)

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.output, line)
}

// --- Run lifecycle helpers ---

// RunStart logs the start of a blog run.
func (l *Logger) RunStart(topic string, crew bool) {
	l.Info("run_start", Fields{
		"topic": topic,
		"crew":  crew,
	})
}

// RunComplete logs the end of a blog run.
func (l *Logger) RunComplete(duration time.Duration, status string) {
	l.Info("run_complete", Fields{
		"duration": duration.String(),
		"status":   status,
	})
}

// TaskStart logs the start of a crew task.
func (l *Logger) TaskStart(task, agent string) {
	l.Info("task_start", Fields{
		"task":  task,
		"agent": agent,
	})
}

// TaskComplete logs the completion of a crew task.
func (l *Logger) TaskComplete(task, agent string, duration time.Duration, iterations int) {
	l.Info("task_complete", Fields{
		"task":       task,
		"agent":      agent,
		"duration":   duration.String(),
		"iterations": iterations,
	})
}

// ToolCall logs a tool invocation.
func (l *Logger) ToolCall(tool string, args map[string]interface{}) {
	fields := Fields{"tool": tool}
	if q, ok := args["query"].(string); ok {
		fields["query"] = q
	}
	l.Debug("tool_call", fields)
}

// ToolResult logs a tool result.
func (l *Logger) ToolResult(tool string, duration time.Duration, err error) {
	fields := Fields{
		"tool":     tool,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Warn("tool_error", fields)
		return
	}
	l.Debug("tool_result", fields)
}

// --- Retry helpers ---

// AttemptFailed logs a failed attempt that will be retried after delay.
func (l *Logger) AttemptFailed(op string, attempt, maxAttempts int, err error, delay time.Duration) {
	l.Warn("attempt_failed", Fields{
		"op":           op,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
		"error":        err.Error(),
		"delay":        delay.String(),
	})
}

// AttemptAborted logs a failure that is not retried. It is a WARN: the
// caller reports the final failure.
func (l *Logger) AttemptAborted(op string, attempt int, err error) {
	l.Warn("attempt_aborted", Fields{
		"op":      op,
		"attempt": attempt,
		"error":   err.Error(),
	})
}

// RetriesExhausted logs that every attempt failed. Like AttemptAborted it
// leaves the ERROR report to the caller.
func (l *Logger) RetriesExhausted(op string, attempts int, err error) {
	l.Warn("retries_exhausted", Fields{
		"op":       op,
		"attempts": attempts,
		"error":    err.Error(),
	})
}
