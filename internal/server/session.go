// Package server manages per-connection session state and the line-oriented
// transport abstraction shared by the TCP listener and the WebSocket bridge.
package server

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// lineConn is a connection that exchanges newline-delimited UTF-8 text.
// WriteLine must be safe for concurrent use; broadcasts are delivered from
// other sessions' goroutines.
type lineConn interface {
	// ReadLine blocks until a full line, EOF, or an I/O error. The returned
	// line has its trailing newline stripped.
	ReadLine() (string, error)
	WriteLine(line string) error
	RemoteAddr() string
	Close() error
}

// Session is the server-side state for one active connection. It is created
// when the connection is accepted and destroyed exactly once on teardown,
// whichever exit path triggers it.
type Session struct {
	ID          string
	DisplayName string
	ConnectedAt time.Time
	Permissions *PermissionSet

	conn   lineConn
	window slidingWindow

	// msgTotal counts every non-empty inbound line for server stats. It is
	// read by admin stats queries from other goroutines.
	msgTotal atomic.Int64

	teardownOnce sync.Once
}

func newSession(conn lineConn, window time.Duration, limit int) *Session {
	id := uuid.NewString()
	return &Session{
		ID:          id,
		DisplayName: id,
		ConnectedAt: time.Now(),
		Permissions: defaultPermissions(),
		conn:        conn,
		window:      newSlidingWindow(window, limit),
	}
}

// Send delivers one line to the session's peer. Best effort; the caller
// decides whether a failure matters.
func (s *Session) Send(line string) error {
	return s.conn.WriteLine(line)
}

// SendError reports a client-visible error on the session's connection.
func (s *Session) SendError(msg string) {
	_ = s.conn.WriteLine("Error: " + msg)
}

// RemoteAddr returns the peer address for logging.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr()
}

// MessageTotal returns the number of non-empty lines received so far.
func (s *Session) MessageTotal() int64 {
	return s.msgTotal.Load()
}

// tcpLineConn adapts a stream socket to the line protocol.
type tcpLineConn struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
}

func newTCPLineConn(conn net.Conn) *tcpLineConn {
	return &tcpLineConn{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *tcpLineConn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *tcpLineConn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

func (c *tcpLineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *tcpLineConn) Close() error {
	return c.conn.Close()
}

// isExpectedCloseError filters the errors every teardown path produces when
// both sides race to close the socket.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
