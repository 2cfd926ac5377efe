package chat

import (
	"bufio"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"netlab/errors"
	"netlab/sink"
	"netlab/socket"
	"netlab/transcript"
)

const testWait = 3 * time.Second

func newTestServer(t *testing.T) (*Server, *transcript.Log) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelError)
	transcriptLog := transcript.New(filepath.Join(t.TempDir(), "chat_log.txt"))
	server := NewServer(socket.NewSettings(), transcriptLog, sink.Discard{}, log)
	t.Cleanup(server.Stop)
	return server, transcriptLog
}

func startTestServer(t *testing.T) (*Server, *transcript.Log, int) {
	t.Helper()
	server, transcriptLog := newTestServer(t)
	require.NoError(t, server.Start("127.0.0.1", 0))
	return server, transcriptLog, server.Addr().(*net.TCPAddr).Port
}

// dialAndJoin dials the server and announces a nickname, returning the
// raw connection and a line reader on it.
func dialAndJoin(t *testing.T, port int, name string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", (&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}).String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = conn.Write([]byte(name + "\n"))
	require.NoError(t, err)
	return conn, bufio.NewReader(conn)
}

// readUntil consumes lines until one contains substr. Broadcast order
// across senders is not total, so tests never assume exact sequences.
func readUntil(t *testing.T, conn net.Conn, reader *bufio.Reader, substr string) string {
	t.Helper()
	deadline := time.Now().Add(testWait)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		line, err := reader.ReadString('\n')
		require.NoError(t, err, "waiting for line containing %q", substr)
		line = strings.TrimRight(line, "\n")
		if strings.Contains(line, substr) {
			return line
		}
	}
}

func TestServer_StartTwiceFails(t *testing.T) {
	req := require.New(t)
	server, _, _ := startTestServer(t)

	err := server.Start("127.0.0.1", 0)

	req.ErrorIs(err, errors.ErrAlreadyRunning)
	req.True(server.Running())
}

func TestServer_StartOnBusyPort(t *testing.T) {
	req := require.New(t)
	_, _, port := startTestServer(t)

	other, _ := newTestServer(t)
	err := other.Start("127.0.0.1", port)

	req.ErrorIs(err, errors.ErrAddressInUse)
	req.False(other.Running())
}

func TestServer_StopIsIdempotent(t *testing.T) {
	req := require.New(t)
	server, _ := newTestServer(t)

	// Stop before any start is a no-op
	server.Stop()
	req.False(server.Running())

	req.NoError(server.Start("127.0.0.1", 0))
	server.Stop()
	server.Stop()
	req.False(server.Running())

	// A restart produces a fresh, empty registry
	req.NoError(server.Start("127.0.0.1", 0))
	req.True(server.Running())
	req.Equal(0, server.SessionCount())
}

func TestServer_BroadcastEchoesToAllIncludingSender(t *testing.T) {
	req := require.New(t)
	server, transcriptLog, port := startTestServer(t)

	aliConn, aliReader := dialAndJoin(t, port, "ali")
	veliConn, veliReader := dialAndJoin(t, port, "veli")
	readUntil(t, aliConn, aliReader, "* veli joined")

	_, err := aliConn.Write([]byte("merhaba\n"))
	req.NoError(err)

	// The sender receives its own message back: echo-to-all policy.
	req.Equal("ali: merhaba", readUntil(t, aliConn, aliReader, "merhaba"))
	req.Equal("ali: merhaba", readUntil(t, veliConn, veliReader, "merhaba"))

	// Appended to the transcript exactly once.
	req.Eventually(func() bool {
		lines, err := transcriptLog.ReadAll()
		if err != nil {
			return false
		}
		count := 0
		for _, line := range lines {
			if strings.Contains(line, "ali: merhaba") {
				count++
			}
		}
		return count == 1
	}, testWait, 20*time.Millisecond)

	req.Equal(2, server.SessionCount())
}

func TestServer_SeveredClientDoesNotBreakBroadcast(t *testing.T) {
	req := require.New(t)
	server, _, port := startTestServer(t)

	aliConn, aliReader := dialAndJoin(t, port, "ali")
	veliConn, _ := dialAndJoin(t, port, "veli")
	readUntil(t, aliConn, aliReader, "* veli joined")

	// Abrupt severing, no /quit
	req.NoError(veliConn.Close())
	req.Eventually(func() bool { return server.SessionCount() == 1 }, testWait, 10*time.Millisecond)

	_, err := aliConn.Write([]byte("still here\n"))
	req.NoError(err)
	readUntil(t, aliConn, aliReader, "ali: still here")
}

func TestServer_QuitBehavesLikeDisconnect(t *testing.T) {
	req := require.New(t)
	server, _, port := startTestServer(t)

	aliConn, aliReader := dialAndJoin(t, port, "ali")
	veliConn, veliReader := dialAndJoin(t, port, "veli")
	readUntil(t, aliConn, aliReader, "* veli joined")

	_, err := veliConn.Write([]byte("/quit\n"))
	req.NoError(err)

	// The quitting session is closed by the server and removed: draining
	// the connection ends with a closed-stream error, not a timeout.
	req.NoError(veliConn.SetReadDeadline(time.Now().Add(testWait)))
	var readErr error
	for readErr == nil {
		_, readErr = veliReader.ReadString('\n')
	}
	if ne, ok := readErr.(net.Error); ok {
		req.False(ne.Timeout())
	}
	req.Eventually(func() bool { return server.SessionCount() == 1 }, testWait, 10*time.Millisecond)

	// The /quit line itself was never broadcast as content; the
	// remaining client keeps working.
	_, err = aliConn.Write([]byte("anyone here?\n"))
	req.NoError(err)
	line := readUntil(t, aliConn, aliReader, "anyone here?")
	req.NotContains(line, "/quit")
}

func TestServer_StopClosesAllSessions(t *testing.T) {
	req := require.New(t)
	server, _, port := startTestServer(t)

	aliConn, aliReader := dialAndJoin(t, port, "ali")
	readUntil(t, aliConn, aliReader, "* ali joined")

	server.Stop()

	req.NoError(aliConn.SetReadDeadline(time.Now().Add(testWait)))
	_, err := aliReader.ReadString('\n')
	req.Error(err)
	req.Equal(0, server.SessionCount())
}

// A connection accepted just before Stop closes the listener must not
// slip into the registry unclosed: such a session would block its read
// loop forever and Stop would never drain. Dialing in a tight loop
// while stopping exercises that window.
func TestServer_StopDuringConnectionChurn(t *testing.T) {
	req := require.New(t)
	for i := 0; i < 25; i++ {
		server, _ := newTestServer(t)
		req.NoError(server.Start("127.0.0.1", 0))
		addr := server.Addr().String()

		stopDialing := make(chan struct{})
		dialerDone := make(chan struct{})
		var conns []net.Conn
		go func() {
			defer close(dialerDone)
			for {
				select {
				case <-stopDialing:
					return
				default:
				}
				conn, err := net.Dial("tcp", addr)
				if err != nil {
					return
				}
				// Held open without sending anything: a leaked session
				// would block in its read loop indefinitely.
				conns = append(conns, conn)
			}
		}()

		stopped := make(chan struct{})
		go func() {
			server.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(testWait):
			t.Fatal("Stop did not return while connections were arriving")
		}

		close(stopDialing)
		<-dialerDone
		req.Equal(0, server.SessionCount())
		for _, conn := range conns {
			_ = conn.Close()
		}
	}
}

func TestServer_QuitAsHandshakeClosesWithoutJoin(t *testing.T) {
	req := require.New(t)
	server, _, port := startTestServer(t)

	aliConn, aliReader := dialAndJoin(t, port, "ali")
	readUntil(t, aliConn, aliReader, "* ali joined")

	ghost, err := net.Dial("tcp", (&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}).String())
	req.NoError(err)
	t.Cleanup(func() { _ = ghost.Close() })
	_, err = ghost.Write([]byte("/quit\n"))
	req.NoError(err)

	// The server closes the connection like end-of-stream
	req.NoError(ghost.SetReadDeadline(time.Now().Add(testWait)))
	_, readErr := bufio.NewReader(ghost).ReadString('\n')
	req.Error(readErr)
	req.Eventually(func() bool { return server.SessionCount() == 1 }, testWait, 10*time.Millisecond)

	// No join or leave notice was broadcast for it: everything ali sees
	// up to its own next message is notice-free.
	_, err = aliConn.Write([]byte("marker\n"))
	req.NoError(err)
	deadline := time.Now().Add(testWait)
	for {
		req.NoError(aliConn.SetReadDeadline(deadline))
		line, err := aliReader.ReadString('\n')
		req.NoError(err)
		if strings.Contains(line, "marker") {
			break
		}
		req.NotContains(line, "joined")
		req.NotContains(line, "left")
	}
}

func TestServer_AnonymousSessionUsesAddressLabel(t *testing.T) {
	req := require.New(t)
	_, _, port := startTestServer(t)

	conn, err := net.Dial("tcp", (&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}).String())
	req.NoError(err)
	t.Cleanup(func() { _ = conn.Close() })
	local := conn.LocalAddr().String()

	// Empty nickname line falls back to the peer address
	_, err = conn.Write([]byte("\n"))
	req.NoError(err)

	reader := bufio.NewReader(conn)
	line := readUntil(t, conn, reader, "joined")
	req.Contains(line, local)
}
