// Package socket holds the shared tuning parameters applied to every
// listening and dialing socket in the application. One long-lived
// Settings instance is passed by reference to each constructor that
// opens a socket; readers only ever see full snapshots.
package socket

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"netlab/errors"
)

// DefaultBufferSize is applied to both kernel buffers until updated.
const DefaultBufferSize = 2048

// PollInterval bounds a single accept or read when the settings ask for
// non-blocking behaviour. Go sockets are non-blocking at the runtime
// level, so the flag maps to a short deadline with retry on timeout.
const PollInterval = 200 * time.Millisecond

// Config is an immutable snapshot of the socket tuning parameters.
// A nil Timeout means reads and accepts block indefinitely.
type Config struct {
	Timeout    *time.Duration `validate:"omitempty,min=0"`
	RecvBuffer int            `validate:"gt=0"`
	SendBuffer int            `validate:"gt=0"`
	Blocking   bool
}

// Deadline returns the absolute deadline a single accept or read should
// carry under this config. The zero time means block forever.
func (c Config) Deadline(now time.Time) time.Time {
	if !c.Blocking {
		return now.Add(PollInterval)
	}
	if c.Timeout != nil {
		return now.Add(*c.Timeout)
	}
	return time.Time{}
}

// Retryable reports whether a deadline expiry under this config is a
// poll tick (retry the operation) rather than a terminal timeout.
func (c Config) Retryable() bool {
	return !c.Blocking
}

// Patch carries the fields of a settings update; nil fields keep their
// previous values. A zero Timeout clears the timeout entirely, matching
// the "0 disables the timeout" surface of the settings menu.
type Patch struct {
	Timeout    *time.Duration
	RecvBuffer *int
	SendBuffer *int
	Blocking   *bool
}

// Settings is the shared, mutable holder of the current Config.
// Last writer wins; there is no versioning.
type Settings struct {
	mu       sync.RWMutex
	current  Config
	validate *validator.Validate
}

func NewSettings() *Settings {
	return &Settings{
		current: Config{
			RecvBuffer: DefaultBufferSize,
			SendBuffer: DefaultBufferSize,
			Blocking:   true,
		},
		validate: validator.New(),
	}
}

// Get returns the current snapshot.
func (s *Settings) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update merges the patch over the current config and installs the
// result if it validates. On violation the previous config is kept and
// ErrInvalidConfig is returned.
func (s *Settings) Update(p Patch) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if p.RecvBuffer != nil {
		next.RecvBuffer = *p.RecvBuffer
	}
	if p.SendBuffer != nil {
		next.SendBuffer = *p.SendBuffer
	}
	if p.Blocking != nil {
		next.Blocking = *p.Blocking
	}
	if p.Timeout != nil {
		switch {
		case *p.Timeout < 0:
			return s.current, fmt.Errorf("%w: timeout must not be negative", errors.ErrInvalidConfig)
		case *p.Timeout == 0:
			next.Timeout = nil
		default:
			t := *p.Timeout
			next.Timeout = &t
		}
	}
	if err := s.validate.Struct(next); err != nil {
		return s.current, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	s.current = next
	return next, nil
}

// bufferedConn is satisfied by *net.TCPConn. In-memory pipes used by
// tests do not expose kernel buffers, so Apply skips them.
type bufferedConn interface {
	SetReadBuffer(int) error
	SetWriteBuffer(int) error
}

// Apply sets the kernel buffer sizes on conn. Buffers are applied
// before any traffic moves; deadlines are per-operation (see Deadline)
// because Go deadlines are absolute points in time, not durations.
func (s *Settings) Apply(conn net.Conn) error {
	c := s.Get()
	bc, ok := conn.(bufferedConn)
	if !ok {
		return nil
	}
	if err := bc.SetReadBuffer(c.RecvBuffer); err != nil {
		return err
	}
	return bc.SetWriteBuffer(c.SendBuffer)
}
