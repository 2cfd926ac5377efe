package sink

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"netlab/domain"
	"netlab/domain/event"
)

// FileSink appends events to a plain text file, one per line:
//
//	[2006-01-02 15:04:05] [INFO] chat: server started
//
// The handle is released between calls, like the transcript, so the
// viewer can read the file while the application runs.
type FileSink struct {
	mu   sync.Mutex
	path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Record(e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("[%s] [%s] %s: %s\n",
		e.At.Format(domain.TimeLayout), e.Severity, e.Module, e.Message)
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadAll returns the recorded lines for the error management view.
func (s *FileSink) ReadAll() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
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

// Clear truncates the file.
func (s *FileSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.path, nil, 0o644)
}
