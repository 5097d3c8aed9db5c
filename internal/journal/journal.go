// Package journal appends timestamped lines to the thought and journal logs.
package journal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	ThoughtsFile = "thoughts.log"
	JournalFile  = "journal.log"

	lineTimeFormat = "2006-01-02 15:04:05"
)

// Writer appends one "YYYY-MM-DD HH:MM:SS | text" line per entry to a log
// file. Writes are best-effort: callers treat failures as non-fatal.
type Writer struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New creates a writer for the named log file inside dir.
func New(dir, name string) *Writer {
	return &Writer{
		path: filepath.Join(dir, name),
		now:  time.Now,
	}
}

// Append writes a single entry. Newlines inside text are flattened so each
// entry stays one line.
func (w *Writer) Append(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	text = strings.ReplaceAll(text, "\n", " ")
	line := fmt.Sprintf("%s | %s\n", w.now().Format(lineTimeFormat), text)

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(line)
	return err
}

// Recent returns up to n most recent entries, oldest first.
func (w *Writer) Recent(n int) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
