// Package server provides the WebSocket bridge: an HTTP listener whose /ws
// endpoint feeds browser connections into the same session pipeline as the
// TCP listener. Each text message is one protocol line.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type httpBridge struct {
	srv *http.Server
}

// startBridge launches the HTTP server for the WebSocket endpoint and the
// health check. Bridge failures are not fatal to the TCP relay.
func (s *Server) startBridge() {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.healthHandler)
	mux.HandleFunc("/ws", s.wsHandler)
	mux.HandleFunc("/test", testPageHandler)

	s.httpSrv.srv = &http.Server{
		Addr:        s.cfg.HTTPAddr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		if err := s.httpSrv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("WebSocket bridge failed")
		}
	}()
	log.WithField("addr", s.cfg.HTTPAddr).Info("WebSocket bridge started")
}

func (s *Server) stopBridge() {
	if s.httpSrv.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("WebSocket bridge shutdown error")
	}
}

// wsHandler upgrades the HTTP connection and attaches it as a session. The
// upgraded connection speaks the identical line protocol; the session layer
// cannot tell the transports apart.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	s.attach(newWSLineConn(conn))
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay is running. Run id: %s", s.runID)
}

// checkOrigin enforces the configured origin allow-list on upgrades.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if s.allowAllOrigins {
		return true
	}
	if _, ok := s.allowedOrigins[normalized]; ok {
		return true
	}
	log.WithField("origin", origin).Warn("Blocked WebSocket connection from disallowed origin")
	return false
}

func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	allowed := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.WithField("origin", origin).Warn("Ignoring invalid origin in configuration")
			continue
		}
		allowed[normalized] = struct{}{}
	}
	return allowed, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// wsLineConn adapts a WebSocket connection to the line protocol: one text
// message in each direction per line.
type wsLineConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSLineConn(conn *websocket.Conn) *wsLineConn {
	return &wsLineConn{conn: conn}
}

func (c *wsLineConn) ReadLine() (string, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func (c *wsLineConn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsLineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *wsLineConn) Close() error {
	return c.conn.Close()
}

// testPageHandler serves a minimal page for exercising the bridge from a
// browser.
func testPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	const page = `<!DOCTYPE html>
<html>
<head><title>Chat Relay Test</title></head>
<body>
<h1>Chat Relay WebSocket Test</h1>
<div id="messages"></div>
<input type="text" id="input" placeholder="Type a line...">
<button onclick="send()">Send</button>
<script>
const ws = new WebSocket('ws://' + location.host + '/ws');
const messages = document.getElementById('messages');
ws.onmessage = function(e) {
    const div = document.createElement('div');
    div.textContent = e.data;
    messages.appendChild(div);
};
function send() {
    const input = document.getElementById('input');
    if (input.value && ws.readyState === WebSocket.OPEN) {
        ws.send(input.value);
        input.value = '';
    }
}
document.getElementById('input').addEventListener('keypress', function(e) {
    if (e.key === 'Enter') send();
});
</script>
</body>
</html>`
	if _, err := fmt.Fprint(w, page); err != nil {
		log.WithError(err).Warn("Error writing test page")
	}
}
