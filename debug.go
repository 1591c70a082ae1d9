package sprout

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	maxRequestBodyLog  = 2000
	maxResponseBodyLog = 4000
)

// DebugLogger writes opt-in diagnostics for the sync kernel as one
// key=value line per event: remote traffic, drains, pulls and errors.
// A nil or disabled logger discards everything.
type DebugLogger struct {
	mu      sync.Mutex
	enabled bool
	w       io.Writer
	file    *os.File
	now     func() time.Time
}

// NewDebugLogger returns a logger writing to logPath, or to stderr when
// logPath is empty. Nothing is opened unless enabled.
func NewDebugLogger(enabled bool, logPath string) (*DebugLogger, error) {
	l := &DebugLogger{enabled: enabled, w: os.Stderr, now: time.Now}
	if !enabled || logPath == "" {
		return l, nil
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}
	l.w, l.file = f, f
	return l, nil
}

// Close releases the log file, if any.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file, l.w = nil, io.Discard
	return err
}

func (l *DebugLogger) on() bool { return l != nil && l.enabled }

// event writes "ts event k=v ...". Values containing spaces are quoted.
func (l *DebugLogger) event(name string, kv ...any) {
	if !l.on() {
		return
	}
	var sb strings.Builder
	sb.WriteString(l.now().UTC().Format("2006-01-02T15:04:05.000Z"))
	sb.WriteString(" sprout ")
	sb.WriteString(name)
	for i := 0; i+1 < len(kv); i += 2 {
		v := fmt.Sprint(kv[i+1])
		if strings.ContainsAny(v, " \t\n\"") {
			v = fmt.Sprintf("%q", v)
		}
		fmt.Fprintf(&sb, " %v=%s", kv[i], v)
	}
	sb.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, sb.String())
}

// Log writes a free-form message.
func (l *DebugLogger) Log(format string, args ...any) {
	l.event("msg", "text", fmt.Sprintf(format, args...))
}

// LogRequest records an outgoing remote request.
func (l *DebugLogger) LogRequest(method, url string, body []byte) {
	if !l.on() {
		return
	}
	kv := []any{"method", method, "url", url}
	if len(body) > 0 {
		kv = append(kv, "body", truncateForLog(string(body), maxRequestBodyLog))
	}
	l.event("request", kv...)
}

// LogResponse records a remote response.
func (l *DebugLogger) LogResponse(statusCode int, status string, body []byte) {
	if !l.on() {
		return
	}
	kv := []any{"status", statusCode}
	if len(body) > 0 {
		kv = append(kv, "body", truncateForLog(string(body), maxResponseBodyLog))
	}
	l.event("response", kv...)
}

// LogError records a failed operation.
func (l *DebugLogger) LogError(operation string, err error) {
	l.event("error", "op", operation, "err", err)
}

// LogSync records a sync milestone.
func (l *DebugLogger) LogSync(operation string, details string) {
	l.event("sync", "op", operation, "detail", details)
}

// LogDrain records the outcome of one drain.
func (l *DebugLogger) LogDrain(res DrainResult, err error) {
	if !l.on() {
		return
	}
	if res.Coalesced {
		l.event("drain", "coalesced", true)
		return
	}
	l.event("drain",
		"cycles", res.Cycles, "claimed", res.Claimed, "pushed", res.Pushed,
		"delivered", res.Delivered, "completed", res.Completed, "reverted", res.Reverted)
	if err != nil {
		l.LogError("drain", err)
	}
}

// LogPull records the outcome of one pull.
func (l *DebugLogger) LogPull(learnerID string, since, watermark time.Time, n int, err error) {
	if !l.on() {
		return
	}
	if err != nil {
		l.LogError("pull "+learnerID, err)
		return
	}
	from := "beginning"
	if !since.IsZero() {
		from = since.UTC().Format(time.RFC3339Nano)
	}
	l.event("pull", "learner", learnerID, "since", from,
		"watermark", watermark.UTC().Format(time.RFC3339Nano), "records", n)
}

// truncateForLog shortens s to maxLen bytes, noting the original size.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return fmt.Sprintf("%s...(%d bytes)", s[:maxLen], len(s))
}
