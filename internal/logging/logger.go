// Package logging provides leveled logging and run event tracing for latwalk.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An EventLogger for structured JSONL run events (events.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level the cell's
// step-by-step progress and full checkpoint headers are logged.
const LevelTrace = slog.LevelDebug - 4

// EventsFile is the name of the JSONL event log inside its directory.
const EventsFile = "events.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w. With jsonFormat the
// records are JSON objects, otherwise logfmt-style text.
func NewLogger(level string, w io.Writer, jsonFormat bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// EventLogger appends run events (run started, checkpoint written, run
// finished) to a JSONL file. It is safe for concurrent use. A nil
// EventLogger is valid and discards everything.
type EventLogger struct {
	mu   sync.Mutex
	file *os.File
	run  string
}

// NewEventLogger opens dir/events.jsonl for append when level is debug or
// trace. At info level, or if the file cannot be opened, it returns nil.
// Every event carries runID.
func NewEventLogger(dir, level, runID string) *EventLogger {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, EventsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &EventLogger{file: f, run: runID}
}

// Log writes one event line. "event", "run_id" and "time" are set by the
// logger and override same-named fields. fields is not mutated.
func (el *EventLogger) Log(event string, fields map[string]any) {
	if el == nil || el.file == nil {
		return
	}

	entry := make(map[string]any, len(fields)+3)
	maps.Copy(entry, fields)
	entry["event"] = event
	entry["run_id"] = el.run
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file != nil {
		_, _ = el.file.Write(data)
	}
}

// Close closes the underlying file. Safe to call on nil receiver.
func (el *EventLogger) Close() {
	if el == nil {
		return
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file != nil {
		el.file.Close()
		el.file = nil
	}
}
