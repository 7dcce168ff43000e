package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mesh-gateway/meshgw/internal/config"
	"github.com/mesh-gateway/meshgw/internal/message"
)

// Entry is a single audit record, one JSON line in the trail.
type Entry struct {
	Timestamp   time.Time `json:"ts"`
	Action      string    `json:"action"`
	Destination string    `json:"destination,omitempty"`
	Endpoint    string    `json:"endpoint,omitempty"`
	Outcome     string    `json:"outcome"`
	Code        string    `json:"code,omitempty"`
	LatencyMS   int64     `json:"latencyMs,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Logger writes audit entries. Safe for concurrent use.
type Logger struct {
	mu  sync.Mutex
	out io.WriteCloser
}

// Open creates a logger backed by a size-rotated file.
func Open(cfg config.LoggingConfig) *Logger {
	return New(&lumberjack.Logger{
		Filename:   cfg.AuditFile,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	})
}

// New creates a logger writing to the given sink.
func New(out io.WriteCloser) *Logger {
	return &Logger{out: out}
}

// LogSend records the terminal outcome of one send request.
func (l *Logger) LogSend(req message.SendRequest, outcome message.Outcome, wait time.Duration) {
	entry := Entry{
		Timestamp:   outcome.Timestamp,
		Action:      "sendMessage",
		Destination: req.Destination(),
		Outcome:     "success",
		LatencyMS:   wait.Milliseconds(),
	}
	if !outcome.Success {
		entry.Outcome = "failure"
		entry.Code = string(outcome.Reason)
		entry.Error = outcome.Err
	}
	l.write(entry)
}

// LogSession records a device session transition attempt.
func (l *Logger) LogSession(action, endpoint string, err error) {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Endpoint:  endpoint,
		Outcome:   "success",
	}
	if err != nil {
		entry.Outcome = "failure"
		entry.Error = err.Error()
	}
	l.write(entry)
}

// write appends one JSON line. Failures surface on stderr only; auditing
// must never fail the action it records.
func (l *Logger) write(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal audit entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write audit entry: %v\n", err)
	}
}

// Close closes the underlying sink.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
