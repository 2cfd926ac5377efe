package chat

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"netlab/domain"
	"netlab/domain/event"
	"netlab/errors"
	"netlab/sink"
	"netlab/socket"
)

// Client is the interactive side of the chat: one background reader
// surfacing broadcasts and one foreground loop sending local input.
// The reader never writes to the connection and the send loop never
// reads from it, so the connection itself needs no lock; the only
// shared state is the closed flag, set exactly once by whichever side
// detects closure first.
type Client struct {
	settings *socket.Settings
	events   sink.EventSink
	log      *slog.Logger
	now      func() time.Time

	conn      net.Conn
	closed    atomic.Bool
	listening bool
	done      chan struct{}
}

func NewClient(settings *socket.Settings, events sink.EventSink, log *slog.Logger) *Client {
	return &Client{
		settings: settings,
		events:   events,
		log:      log,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Connect dials the server, applies the socket settings and announces
// name as the first line of the session.
func (c *Client) Connect(host string, port int, name string) error {
	cfg := c.settings.Get()
	dialer := net.Dialer{}
	if cfg.Timeout != nil {
		dialer.Timeout = *cfg.Timeout
	}
	conn, err := dialer.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		err = errors.ClassifyDial(err)
		c.record(event.SeverityError, "connect failed: "+err.Error())
		return err
	}
	if err := c.settings.Apply(conn); err != nil {
		c.log.Warn("could not apply socket settings", "error", err)
	}
	if _, err := conn.Write([]byte(name + "\n")); err != nil {
		_ = conn.Close()
		return err
	}
	c.conn = conn
	c.log.Info("connected", "server", conn.RemoteAddr().String(), "name", name)
	c.record(event.SeverityInfo, fmt.Sprintf("connected to %s as %q", conn.RemoteAddr(), name))
	return nil
}

// Listen starts the background reader. Every incoming broadcast line is
// handed to onLine; the returned channel closes once the peer is gone
// and the connection released. The reader must not block the sending
// path, so onLine should return quickly.
func (c *Client) Listen(onLine func(string)) <-chan struct{} {
	c.listening = true
	go func() {
		defer close(c.done)
		scanner := bufio.NewScanner(c.conn)
		for scanner.Scan() {
			onLine(scanner.Text())
		}
		if c.closed.CompareAndSwap(false, true) {
			// The server went away first; release our side and tell the user.
			_ = c.conn.Close()
			c.log.Info("disconnected by server")
		}
	}()
	return c.done
}

// Send transmits one message line verbatim. Empty lines are not sent.
func (c *Client) Send(text string) error {
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return nil
	}
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if c.closed.Load() {
		return fmt.Errorf("connection closed")
	}
	_, err := c.conn.Write([]byte(text + "\n"))
	return err
}

// Run drives the foreground send loop until the input yields /quit or
// end-of-input, or until the peer disconnects. The scanner is shared
// with the caller's own prompt loop, so Run never buffers ahead of the
// lines it consumed. Listen must have been started first.
func (c *Client) Run(input *bufio.Scanner) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	for input.Scan() {
		text := strings.TrimSpace(input.Text())
		if text == "" {
			continue
		}
		if c.closed.Load() {
			break
		}
		if text == domain.QuitCommand {
			_ = c.Send(domain.QuitCommand)
			break
		}
		if err := c.Send(text); err != nil {
			break
		}
	}
	c.Disconnect()
	if c.listening {
		<-c.done
	}
	return input.Err()
}

// Disconnect closes the connection if open; idempotent if already
// closed. Closing unblocks the background reader, which then exits.
func (c *Client) Disconnect() {
	if c.conn == nil {
		return
	}
	if c.closed.CompareAndSwap(false, true) {
		_ = c.conn.Close()
	}
}

// Closed reports whether the connection has been released by either side.
func (c *Client) Closed() bool {
	return c.closed.Load()
}

func (c *Client) record(severity event.Severity, message string) {
	if err := c.events.Record(event.New(ModuleName, severity, message, c.now())); err != nil {
		c.log.Warn("event record failed", "error", err)
	}
}
