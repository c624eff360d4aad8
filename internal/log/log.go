// Package log is refcheck's leveled, categorised debug log. Nothing is
// written until the CLI installs a sink, which it does for --debug or
// REFCHECK_DEBUG.
package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Level is a log severity.
type Level int

// Levels in increasing severity.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel reads a config level name. Unknown names mean LevelDebug.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return LevelDebug
}

// Category tags the subsystem an entry came from.
type Category string

const (
	CatTransport Category = "transport" // WebSocket channels
	CatRouter    Category = "router"    // session to check dispatch
	CatLedger    Category = "ledger"    // history records
	CatActive    Category = "active"    // focused check model
	CatTracker   Category = "tracker"   // job lifecycle
	CatAPI       Category = "api"       // HTTP collaborators
	CatStore     Category = "store"     // local sqlite state
	CatCache     Category = "cache"     // detail cache
	CatConfig    Category = "config"    // configuration loading/saving
	CatWatcher   Category = "watcher"   // state file watcher
	CatUI        Category = "ui"        // TUI updates
)

type sink struct {
	mu  sync.Mutex
	w   io.Writer
	min Level
	now func() time.Time
}

var (
	active   *sink
	activeMu sync.RWMutex
)

func current() *sink {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return active
}

func install(w io.Writer) {
	activeMu.Lock()
	active = &sink{w: w, min: LevelDebug, now: time.Now}
	activeMu.Unlock()
}

// InitWithTeaLog opens path through tea.LogToFile so Bubble Tea's own
// diagnostics land in the same file. The returned func closes it.
func InitWithTeaLog(path, prefix string) (func(), error) {
	f, err := tea.LogToFile(path, prefix)
	if err != nil {
		return nil, fmt.Errorf("opening debug log: %w", err)
	}
	install(f)
	return func() {
		SetOutput(nil)
		_ = f.Close()
	}, nil
}

// SetOutput sends entries to w at LevelDebug, or disables logging when w
// is nil.
func SetOutput(w io.Writer) {
	if w == nil {
		activeMu.Lock()
		active = nil
		activeMu.Unlock()
		return
	}
	install(w)
}

// SetMinLevel drops entries below level.
func SetMinLevel(level Level) {
	if s := current(); s != nil {
		s.mu.Lock()
		s.min = level
		s.mu.Unlock()
	}
}

func Debug(cat Category, msg string, kv ...any) { emit(LevelDebug, cat, msg, kv) }
func Info(cat Category, msg string, kv ...any)  { emit(LevelInfo, cat, msg, kv) }
func Warn(cat Category, msg string, kv ...any)  { emit(LevelWarn, cat, msg, kv) }
func Error(cat Category, msg string, kv ...any) { emit(LevelError, cat, msg, kv) }

// ErrorErr logs at LevelError with err appended as the "error" field.
func ErrorErr(cat Category, msg string, err error, kv ...any) {
	text := "<nil>"
	if err != nil {
		text = err.Error()
	}
	emit(LevelError, cat, msg, append(kv, "error", text))
}

// SafeGo runs fn on its own goroutine. A panic is logged rather than
// taking the process down.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				Error(CatTracker, "goroutine panicked", "name", name, "panic", r)
			}
		}()
		fn()
	}()
}

// emit writes one line:
//
//	2026-01-02T10:45:00 [WARN] [router] message key=value key2=value2
func emit(level Level, cat Category, msg string, kv []any) {
	s := current()
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.min {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] [%s] %s", s.now().Format("2006-01-02T15:04:05"), level, cat, msg)
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			fmt.Fprintf(&b, " %v=<missing>", kv[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	b.WriteByte('\n')
	_, _ = io.WriteString(s.w, b.String())
}
