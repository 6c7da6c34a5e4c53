package server

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Shutdown)
	return srv
}

func dialTestServer(t *testing.T, srv *Server) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, bufio.NewReader(conn)
}

func TestServerAcceptsAndRelays(t *testing.T) {
	srv := startTestServer(t, newTestConfig(t))

	aConn, _ := dialTestServer(t, srv)
	bConn, bR := dialTestServer(t, srv)

	require.Eventually(t, func() bool {
		return srv.registry.Count() == 2
	}, 2*time.Second, 10*time.Millisecond)

	sendLine(t, aConn, "hello over tcp")
	assert.Equal(t, "hello over tcp", readLine(t, bConn, bR))
}

func TestServerExitCommand(t *testing.T) {
	srv := startTestServer(t, newTestConfig(t))

	conn, r := dialTestServer(t, srv)
	require.Eventually(t, func() bool {
		return srv.registry.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	sendLine(t, conn, "@exit")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := r.ReadString('\n')
	assert.Error(t, err, "server closes the socket after @exit")

	require.Eventually(t, func() bool {
		return srv.registry.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerEmptyLineDisconnects(t *testing.T) {
	srv := startTestServer(t, newTestConfig(t))

	conn, _ := dialTestServer(t, srv)
	require.Eventually(t, func() bool {
		return srv.registry.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	sendLine(t, conn, "")

	require.Eventually(t, func() bool {
		return srv.registry.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerRateLimitBan(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateLimitMax = 3
	srv := startTestServer(t, cfg)

	conn, r := dialTestServer(t, srv)
	require.Eventually(t, func() bool {
		return srv.registry.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)
	sess := srv.registry.Snapshot()[0]

	// Three messages are within the limit, the fourth violates it.
	for i := 0; i < 4; i++ {
		sendLine(t, conn, "spam")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := r.ReadString('\n')
	require.Error(t, err, "violating session must be disconnected")

	require.Eventually(t, func() bool {
		banned, err := srv.bans.IsBanned(sess.DisplayName)
		return err == nil && banned
	}, 2*time.Second, 10*time.Millisecond)

	records, err := srv.bans.Records()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, "Rate limit exceeded", records[0].Reason)
}

func TestServerUnderLimitNotBanned(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateLimitMax = 3
	srv := startTestServer(t, cfg)

	conn, _ := dialTestServer(t, srv)
	require.Eventually(t, func() bool {
		return srv.registry.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)
	sess := srv.registry.Snapshot()[0]

	for i := 0; i < 3; i++ {
		sendLine(t, conn, "chatty but fine")
	}

	time.Sleep(150 * time.Millisecond)
	_, ok := srv.registry.Get(sess.ID)
	assert.True(t, ok, "staying at the limit must not disconnect")

	banned, err := srv.bans.IsBanned(sess.DisplayName)
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestServerShutdownClosesListener(t *testing.T) {
	srv := startTestServer(t, newTestConfig(t))
	addr := srv.Addr().String()

	conn, r := dialTestServer(t, srv)
	require.Eventually(t, func() bool {
		return srv.registry.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	srv.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := r.ReadString('\n')
	assert.Error(t, err, "open connections are torn down")

	_, err = net.DialTimeout("tcp", addr, 500*time.Millisecond)
	assert.Error(t, err, "listener no longer accepts connections")
}
