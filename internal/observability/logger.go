package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeTransition EventType = "transition"
	EventTypePersist    EventType = "persist"
	EventTypeValidation EventType = "validation"
	EventTypeCache      EventType = "cache"
	EventTypeNotify     EventType = "notify"
	EventTypeHeartbeat  EventType = "heartbeat"
	EventTypeLLM        EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Step      *int      `json:"step,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

// NewLogger writes events as JSON lines to out. LLM events are also appended
// to llmLogPath unless it is empty.
func NewLogger(out io.Writer, llmLogPath string) *Logger {
	if out == nil {
		out = io.Discard
	}
	return &Logger{
		out:        out,
		llmLogPath: llmLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Nop returns a logger that drops every event.
func Nop() *Logger {
	return NewLogger(io.Discard, "")
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error": "failed to marshal event: %v"}`, err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogTransition(sessionID string, from, to int, kind string) {
	l.Log(Event{
		Type:      EventTypeTransition,
		SessionID: sessionID,
		Step:      &from,
		Data: map[string]any{
			"kind": kind,
			"from": from,
			"to":   to,
		},
	})
}

func (l *Logger) LogPersist(sessionID string, step int, err error) {
	data := map[string]any{"ok": err == nil}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{
		Type:      EventTypePersist,
		SessionID: sessionID,
		Step:      &step,
		Data:      data,
	})
}

func (l *Logger) LogValidation(sessionID string, step int, valid bool, reason string) {
	l.Log(Event{
		Type:      EventTypeValidation,
		SessionID: sessionID,
		Step:      &step,
		Data: map[string]any{
			"valid":  valid,
			"reason": reason,
		},
	})
}

func (l *Logger) LogCache(name string, stats any) {
	l.Log(Event{
		Type: EventTypeCache,
		Data: map[string]any{
			"cache": name,
			"stats": stats,
		},
	})
}

func (l *Logger) LogNotify(channel string, err error) {
	data := map[string]any{"channel": channel, "ok": err == nil}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeNotify, Data: data})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(sessionID, stage string, prompt any, response string) {
	l.Log(Event{
		Type:      EventTypeLLM,
		SessionID: sessionID,
		Data: map[string]any{
			"stage":    stage,
			"prompt":   prompt,
			"response": response,
		},
	})
}
