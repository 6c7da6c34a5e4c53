package server

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()

	cfg := NewConfig()
	cfg.DataDir = t.TempDir()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.HTTPAddr = ""
	cfg.ShutdownTimeout = 2 * time.Second
	require.NoError(t, cfg.finalizeCredentials())
	return cfg
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	srv, err := NewServer(newTestConfig(t))
	require.NoError(t, err)
	return srv
}

// pipeSession attaches an in-memory connection to the server and returns
// the session together with the client end of the pipe.
func pipeSession(t *testing.T, srv *Server) (*Session, net.Conn, *bufio.Reader) {
	t.Helper()

	clientConn, serverConn := net.Pipe()
	sess := srv.attach(newTCPLineConn(serverConn))
	t.Cleanup(func() { _ = clientConn.Close() })
	return sess, clientConn, bufio.NewReader(clientConn)
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()

	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func readLine(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\n")
}

// expectNoLine asserts that nothing arrives on the connection within a
// short window.
func expectNoLine(t *testing.T, conn net.Conn, r *bufio.Reader) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, err := r.ReadString('\n')
	require.Error(t, err, "expected no line to be delivered")
}
