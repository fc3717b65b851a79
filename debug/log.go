// Package debug is an opt-in, category-tagged log file for the host side.
// The tick path never logs; the clock, dispatch and front-end goroutines do.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stampLayout = "15:04:05.000"

// sink is the open log file plus per-key counters for LogEvery
type sink struct {
	mu     sync.Mutex
	out    *os.File
	counts map[string]int
}

var current sink

// Enable starts debug logging to ~/.config/flux-sequence/debug.log
func Enable() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return EnableFile(filepath.Join(homeDir, ".config", "flux-sequence", "debug.log"))
}

// EnableFile starts debug logging to path, truncating it. Enabling twice
// keeps the first file.
func EnableFile(path string) error {
	current.mu.Lock()
	defer current.mu.Unlock()

	if current.out != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("debug log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("debug log: %w", err)
	}
	current.out = f
	current.counts = make(map[string]int)
	current.write("debug", "=== flux-sequence debug log ===")
	return nil
}

// Disable closes the log file
func Disable() {
	current.mu.Lock()
	defer current.mu.Unlock()

	if current.out != nil {
		current.out.Close()
		current.out = nil
	}
	current.counts = nil
}

// Enabled reports whether logging is on
func Enabled() bool {
	current.mu.Lock()
	defer current.mu.Unlock()
	return current.out != nil
}

// write emits one line and syncs so a crash keeps it. Caller holds mu.
func (s *sink) write(category, msg string) {
	fmt.Fprintf(s.out, "[%s] %-10s %s\n", time.Now().Format(stampLayout), category, msg)
	s.out.Sync()
}

// Log writes a message to the debug log
func Log(category, format string, args ...any) {
	current.mu.Lock()
	defer current.mu.Unlock()

	if current.out == nil {
		return
	}
	current.write(category, fmt.Sprintf(format, args...))
}

// LogEvery logs only every n-th call with the same category and format. Use
// it on paths that run every tick or every event.
func LogEvery(n int, category, format string, args ...any) {
	current.mu.Lock()
	defer current.mu.Unlock()

	if current.out == nil {
		return
	}
	key := category + "\x00" + format
	current.counts[key]++
	count := current.counts[key]
	if n > 1 && count%n != 0 {
		return
	}
	current.write(category, fmt.Sprintf(format, args...)+fmt.Sprintf(" (every %d, count=%d)", n, count))
}
