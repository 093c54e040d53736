package trader

import (
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"
)

const defaultTailLimit = 50

// LogTail keeps a bounded, most-recent-first window of operator-facing
// messages for the status surface. Entries are mirrored to the logger.
type LogTail struct {
	mu      sync.Mutex
	entries []string
	limit   int
}

// NewLogTail creates a tail bounded to limit entries.
func NewLogTail(limit int) *LogTail {
	if limit <= 0 {
		limit = defaultTailLimit
	}
	return &LogTail{limit: limit}
}

func (t *LogTail) append(level, msg string) {
	entry := fmt.Sprintf("[%s] [%s] %s", time.Now().Format("15:04:05"), level, msg)
	t.mu.Lock()
	t.entries = append([]string{entry}, t.entries...)
	if len(t.entries) > t.limit {
		t.entries = t.entries[:t.limit]
	}
	t.mu.Unlock()
}

// Infof records an informational message.
func (t *LogTail) Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.append("INFO", msg)
	logs.Info(msg)
}

// Warnf records a warning.
func (t *LogTail) Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.append("WARN", msg)
	logs.Warnf("%s", msg)
}

// Errorf records an error.
func (t *LogTail) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.append("ERROR", msg)
	logs.Errorf("%s", msg)
}

// Tail returns up to n entries, most recent first.
func (t *LogTail) Tail(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 || n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]string, n)
	copy(out, t.entries[:n])
	return out
}
