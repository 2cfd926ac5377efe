package chat

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	"netlab/socket"
)

// session is the server-side state bound to one accepted connection.
// It is owned by the server's registry and keyed by connection identity
// (the peer address).
type session struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader
	name   string

	writeMu sync.Mutex
	once    sync.Once
}

func newSession(conn net.Conn) *session {
	return &session{
		id:     conn.RemoteAddr().String(),
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// label returns the display name, falling back to the peer address
// until the nickname handshake completes.
func (s *session) label() string {
	if s.name != "" {
		return s.name
	}
	return s.id
}

// readLine reads one line-delimited message under the deadline policy
// of cfg. Under non-blocking settings a deadline expiry is a poll tick:
// the partial input read so far is kept and the read resumes.
func (s *session) readLine(cfg socket.Config) (string, error) {
	var pending strings.Builder
	for {
		if d := cfg.Deadline(time.Now()); !d.IsZero() {
			_ = s.conn.SetReadDeadline(d)
		} else {
			_ = s.conn.SetReadDeadline(time.Time{})
		}
		chunk, err := s.reader.ReadString('\n')
		pending.WriteString(chunk)
		if err == nil {
			return strings.TrimRight(pending.String(), "\r\n"), nil
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() && cfg.Retryable() {
			continue
		}
		return "", err
	}
}

// write sends one outbound line. Writes from concurrent broadcasts are
// serialized per session so lines never interleave on the wire.
func (s *session) write(line string, cfg socket.Config) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if cfg.Timeout != nil {
		_ = s.conn.SetWriteDeadline(time.Now().Add(*cfg.Timeout))
	}
	_, err := s.conn.Write([]byte(line + "\n"))
	return err
}

func (s *session) close() {
	s.once.Do(func() { _ = s.conn.Close() })
}
