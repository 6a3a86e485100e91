package applog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxFileSizeMB = 5
	maxBackups    = 3
	maxAgeDays    = 28
	maxValueLen   = 200
	truncSuffix   = "…"
)

var (
	mu  sync.Mutex
	out io.Writer
	lj  *lumberjack.Logger
)

// Init opens dir/mergewin.log for appending. Call once at startup.
// The file is rotated by lumberjack once it exceeds 5 MB.
// Safe to skip: all log calls become no-ops if not initialized.
func Init(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	l := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "mergewin.log"),
		MaxSize:    maxFileSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}

	mu.Lock()
	lj = l
	out = l
	mu.Unlock()
	return nil
}

// SetOutput redirects log lines to w. A nil writer disables logging.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if lj != nil {
		lj.Close()
		lj = nil
	}
	out = nil
}

// Info logs a structured event line.
//
//	applog.Info("ws.connected", "remote", addr)
//	applog.Info("merge.done", "moved", 3, "closed", 2)
func Info(event string, kv ...any) {
	write("INFO", event, nil, kv)
}

// Warn logs a recoverable failure; the caller carries on.
//
//	applog.Warn("merge.move", err, "count", len(ids))
func Warn(event string, err error, kv ...any) {
	write("WARN", event, err, kv)
}

// Error logs an event with an error.
//
//	applog.Error("ws.send", err, "action", "close")
func Error(event string, err error, kv ...any) {
	write("ERROR", event, err, kv)
}

func write(level, event string, err error, kv []any) {
	mu.Lock()
	w := out
	mu.Unlock()
	if w == nil {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteByte(' ')
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(event)

	if err != nil {
		b.WriteString(" err=")
		b.WriteString(quote(err.Error()))
	}

	for i := 0; i+1 < len(kv); i += 2 {
		b.WriteByte(' ')
		b.WriteString(fmt.Sprint(kv[i]))
		b.WriteByte('=')
		b.WriteString(quote(fmt.Sprint(kv[i+1])))
	}
	b.WriteByte('\n')

	mu.Lock()
	defer mu.Unlock()
	if out != nil {
		io.WriteString(out, b.String())
	}
}

func quote(s string) string {
	if len(s) > maxValueLen {
		s = s[:maxValueLen] + truncSuffix
	}
	if strings.ContainsAny(s, " \t\n\"") {
		return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
	}
	return s
}
