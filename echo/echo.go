// Package echo implements the one-shot echo round trip used to
// exercise the socket settings end to end: the server echoes a single
// payload per connection, the client verifies the echo byte for byte.
package echo

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"netlab/domain/event"
	"netlab/errors"
	"netlab/sink"
	"netlab/socket"
)

// ModuleName tags every event this package records.
const ModuleName = "echo"

// TestMessage is the fixed payload of the client round trip.
const TestMessage = "Test message. This will be echoed"

// Server accepts connections and echoes one payload back on each
// before closing it.
type Server struct {
	settings *socket.Settings
	events   sink.EventSink
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	listener net.Listener
	running  bool
	wg       sync.WaitGroup
}

func NewServer(settings *socket.Settings, events sink.EventSink, log *slog.Logger) *Server {
	return &Server{
		settings: settings,
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

func (s *Server) Start(host string, port int) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		err = errors.ClassifyListen(err)
		s.record(event.SeverityError, "echo server start failed: "+err.Error())
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("echo server listening", "address", ln.Addr().String())
	s.record(event.SeverityInfo, "echo server started on "+ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Stop closes the listener and waits for in-flight echoes. Safe to call
// when not running.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	s.wg.Wait()
	s.record(event.SeverityInfo, "echo server stopped")
}

func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		cfg := s.settings.Get()
		if tl, ok := ln.(*net.TCPListener); ok {
			if d := cfg.Deadline(time.Now()); !d.IsZero() {
				_ = tl.SetDeadline(d)
			} else {
				_ = tl.SetDeadline(time.Time{})
			}
		}
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn, cfg)
		}()
	}
}

// handle echoes one payload and closes, like the original test server:
// read once, send back whatever arrived.
func (s *Server) handle(conn net.Conn, cfg socket.Config) {
	defer conn.Close()

	if err := s.settings.Apply(conn); err != nil {
		s.log.Warn("could not apply socket settings", "error", err)
	}
	if d := cfg.Deadline(time.Now()); !d.IsZero() {
		_ = conn.SetDeadline(d)
	}

	buf := make([]byte, cfg.RecvBuffer)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		s.log.Debug("echo read failed", "address", conn.RemoteAddr(), "error", err)
		return
	}
	if _, err := conn.Write(buf[:n]); err != nil {
		s.log.Debug("echo write failed", "address", conn.RemoteAddr(), "error", err)
		return
	}
	s.log.Info("echoed payload", "address", conn.RemoteAddr(), "bytes", n)
}

func (s *Server) record(severity event.Severity, message string) {
	if err := s.events.Record(event.New(ModuleName, severity, message, s.now())); err != nil {
		s.log.Warn("event record failed", "error", err)
	}
}

// Result is the outcome of one client round trip.
type Result struct {
	Sent     string
	Received string
	Match    bool
}

// RunTest connects to the echo server, sends the fixed test message and
// collects the echo until it has as many bytes as it sent (servers send
// bytes, so the comparison counts bytes, not characters).
func RunTest(settings *socket.Settings, host string, port int, events sink.EventSink, log *slog.Logger) (Result, error) {
	cfg := settings.Get()
	dialer := net.Dialer{}
	if cfg.Timeout != nil {
		dialer.Timeout = *cfg.Timeout
	}
	conn, err := dialer.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		err = errors.ClassifyDial(err)
		recordEvent(events, log, event.SeverityError, "echo client connect failed: "+err.Error())
		return Result{}, err
	}
	defer conn.Close()

	if err := settings.Apply(conn); err != nil {
		log.Warn("could not apply socket settings", "error", err)
	}
	if d := cfg.Deadline(time.Now()); !d.IsZero() {
		_ = conn.SetDeadline(d)
	}

	if _, err := conn.Write([]byte(TestMessage)); err != nil {
		return Result{}, fmt.Errorf("send failed: %w", err)
	}

	expected := len(TestMessage)
	received := make([]byte, 0, expected)
	chunk := make([]byte, 16)
	for len(received) < expected {
		n, err := conn.Read(chunk)
		received = append(received, chunk[:n]...)
		if err != nil {
			if err == io.EOF {
				break
			}
			return Result{}, fmt.Errorf("receive failed: %w", err)
		}
	}

	result := Result{
		Sent:     TestMessage,
		Received: string(received),
		Match:    string(received) == TestMessage,
	}
	if result.Match {
		recordEvent(events, log, event.SeverityInfo, "echo round trip succeeded")
	} else {
		recordEvent(events, log, event.SeverityError, "echo round trip data mismatch")
	}
	return result, nil
}

func recordEvent(events sink.EventSink, log *slog.Logger, severity event.Severity, message string) {
	if err := events.Record(event.New(ModuleName, severity, message, time.Now())); err != nil {
		log.Warn("event record failed", "error", err)
	}
}
