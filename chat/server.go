// Package chat implements the line-oriented chat service: the
// broadcasting server and the interactive client. The wire format is
// line-delimited UTF-8 text; the first line a client sends is its
// display name, and a literal "/quit" line ends the session.
package chat

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"netlab/domain"
	"netlab/domain/event"
	"netlab/errors"
	"netlab/sink"
	"netlab/socket"
	"netlab/transcript"
)

// ModuleName tags every event this package records.
const ModuleName = "chat"

type state int

const (
	stateStopped state = iota
	stateStarting
	stateRunning
	stateStopping
)

// Server owns the listening socket, the registry of live sessions and
// the broadcast engine. Cancellation of the accept loop and of every
// session read loop is done by closing the socket each one blocks on.
type Server struct {
	settings   *socket.Settings
	transcript *transcript.Log
	events     sink.EventSink
	log        *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	state    state
	listener net.Listener
	sessions map[string]*session

	wg sync.WaitGroup
}

func NewServer(settings *socket.Settings, transcript *transcript.Log, events sink.EventSink, log *slog.Logger) *Server {
	return &Server{
		settings:   settings,
		transcript: transcript,
		events:     events,
		log:        log,
		now:        time.Now,
	}
}

// Start opens the listening socket and launches the accept loop in the
// background. Calling Start while the server runs fails with
// ErrAlreadyRunning and leaves the running instance untouched.
func (s *Server) Start(host string, port int) error {
	s.mu.Lock()
	if s.state != stateStopped {
		s.mu.Unlock()
		return errors.ErrAlreadyRunning
	}
	s.state = stateStarting
	s.mu.Unlock()

	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		s.mu.Lock()
		s.state = stateStopped
		s.mu.Unlock()
		err = errors.ClassifyListen(err)
		s.record(event.SeverityError, "server start failed: "+err.Error())
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.sessions = make(map[string]*session)
	s.state = stateRunning
	s.mu.Unlock()

	s.log.Info("chat server listening", "address", ln.Addr().String())
	s.record(event.SeverityInfo, "server started on "+ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Stop closes the listening socket, closes every registered session and
// waits for their read loops to drain. Safe to call when not running.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return
	}
	s.state = stateStopping
	ln := s.listener
	s.listener = nil
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	// Closing the sockets is the cancellation mechanism: a closed socket
	// unblocks any pending accept or read with an error the loops treat
	// as termination.
	_ = ln.Close()
	for _, sess := range open {
		sess.close()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.sessions = nil
	s.state = stateStopped
	s.mu.Unlock()

	s.log.Info("chat server stopped")
	s.record(event.SeverityInfo, "server stopped")
}

// Running reports whether the server currently accepts connections.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// Addr returns the bound listener address, or nil when stopped. Start
// with port 0 and read the ephemeral port back from here.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// SessionCount returns the number of registered sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
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
				// Poll tick or bounded accept; keep listening.
				continue
			}
			// Listener closed during Stop: the expected shutdown path.
			if s.Running() {
				s.log.Error("accept failed", "error", err)
				s.record(event.SeverityError, "accept failed: "+err.Error())
			}
			return
		}

		if err := s.settings.Apply(conn); err != nil {
			s.log.Warn("could not apply socket settings", "address", conn.RemoteAddr(), "error", err)
		}
		sess := newSession(conn)
		if !s.register(sess) {
			// Accepted in the window where Stop already snapshotted the
			// open sessions; nothing will close it later, so close it now.
			sess.close()
			continue
		}
		s.wg.Add(1)
		go s.serve(sess)
	}
}

// serve runs one session's read loop: nickname handshake, then one
// broadcast per received line until end-of-stream, a read error, or a
// literal /quit, which are all treated identically.
func (s *Server) serve(sess *session) {
	defer s.wg.Done()

	name, err := sess.readLine(s.settings.Get())
	if err != nil {
		s.drop(sess)
		return
	}
	name = strings.TrimSpace(name)
	if name == domain.QuitCommand {
		// Quit during the handshake: the peer never joined, so it is
		// closed without any announcement, like end-of-stream.
		s.drop(sess)
		return
	}
	if name != "" {
		sess.name = name
	}
	s.log.Info("client joined", "name", sess.label(), "address", sess.id)
	s.broadcast(domain.Notice(fmt.Sprintf("* %s joined from %s", sess.label(), sess.id), s.now()))

	for {
		line, err := sess.readLine(s.settings.Get())
		if err != nil || line == domain.QuitCommand {
			break
		}
		if line == "" {
			continue
		}
		s.broadcast(domain.NewMessage(sess.label(), line, s.now()))
	}

	s.drop(sess)
	if s.Running() {
		s.broadcast(domain.Notice(fmt.Sprintf("* %s left", sess.label()), s.now()))
	}
	s.log.Info("client left", "name", sess.label(), "address", sess.id)
}

// broadcast appends the message to the transcript, then writes its wire
// line to every registered session, the sender included. Echoing to the
// sender is the chosen policy: the server carries no display concerns,
// so each client decides how to render its own messages. A write
// failure to one peer drops only that session; the fan-out continues.
func (s *Server) broadcast(m domain.Message) {
	if err := s.transcript.Append(m.TranscriptLine()); err != nil {
		s.log.Error("transcript append failed", "error", err)
		s.record(event.SeverityError, "transcript append failed: "+err.Error())
	}
	cfg := s.settings.Get()
	for _, sess := range s.snapshot() {
		if err := sess.write(m.WireLine(), cfg); err != nil {
			s.log.Debug("dropping unreachable session", "session", sess.id, "error", err)
			s.drop(sess)
		}
	}
}

// register adds the session to the registry while the server runs.
// Stop flips the state and snapshots the registry under the same lock,
// so a session either makes it into the snapshot or is refused here.
func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning || s.sessions == nil {
		return false
	}
	s.sessions[sess.id] = sess
	return true
}

// drop removes the session from the registry and closes its connection.
// Removal is synchronous with disconnect detection; a second call finds
// nothing registered and is a no-op.
func (s *Server) drop(sess *session) {
	s.mu.Lock()
	if s.sessions != nil {
		delete(s.sessions, sess.id)
	}
	s.mu.Unlock()
	sess.close()
}

// snapshot copies the registry under lock so a broadcast never observes
// a partially-updated map and never holds the lock during socket writes.
func (s *Server) snapshot() []*session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

func (s *Server) record(severity event.Severity, message string) {
	if err := s.events.Record(event.New(ModuleName, severity, message, s.now())); err != nil {
		s.log.Warn("event record failed", "error", err)
	}
}
