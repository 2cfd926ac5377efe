// Package transcript persists every broadcast chat line to an
// append-only text file shared with the viewer.
package transcript

import (
	"bufio"
	"os"
	"sync"
)

// Log is the durable transcript. Each Append opens the backing file,
// writes one line and releases the handle before returning; the lock
// spans the whole open-write-close sequence so concurrent sessions
// interleave at line granularity only.
type Log struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Log {
	return &Log{path: path}
}

func (l *Log) Path() string {
	return l.path
}

// Append writes one line terminated by a line break.
func (l *Log) Append(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadAll returns every transcript line in order. A missing file is an
// empty transcript, not an error.
func (l *Log) ReadAll() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// Tail returns the last n lines, oldest first.
func (l *Log) Tail(n int) ([]string, error) {
	lines, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
