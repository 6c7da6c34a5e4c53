// Package server ties the chat relay together: the accept loop, per
// connection handler goroutines, once-only teardown, and graceful shutdown.
package server

import (
	"errors"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Server owns the listening socket and the shared structures every
// connection handler touches: the registry, the ban store, and the logbook.
type Server struct {
	cfg      *Config
	runID    string
	registry *Registry
	bans     *BanStore
	logbook  *Logbook

	listener net.Listener

	allowAllOrigins bool
	allowedOrigins  map[string]struct{}
	httpSrv         httpBridge

	wg           sync.WaitGroup
	shutdownOnce sync.Once
	done         chan struct{}
}

// NewServer builds a server from the configuration, creating the per-run
// data directory, the ban store, and the logbook.
func NewServer(cfg *Config) (*Server, error) {
	runID := uuid.NewString()
	root := filepath.Join(cfg.DataDir, runID)

	bans, err := NewBanStore(filepath.Join(root, "nodes", "client", "banned", "list.json"))
	if err != nil {
		return nil, err
	}
	logbook, err := NewLogbook(root)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		runID:    runID,
		registry: NewRegistry(),
		bans:     bans,
		logbook:  logbook,
		done:     make(chan struct{}),
	}
	s.allowedOrigins, s.allowAllOrigins = normalizeOrigins(cfg.AllowedOrigins)
	return s, nil
}

// RunID identifies this server run; it names the data directory.
func (s *Server) RunID() string {
	return s.runID
}

// Addr returns the bound listener address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the TCP listener, starts the WebSocket bridge when
// configured, and launches the accept loop. It does not block.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln

	if s.cfg.HTTPAddr != "" {
		s.startBridge()
	}

	go s.acceptLoop()

	log.WithFields(log.Fields{
		"addr":   ln.Addr().String(),
		"run_id": s.runID,
	}).Info("Server started")
	return nil
}

// acceptLoop blocks on accept and hands each connection to its own handler
// goroutine. It exits on shutdown; any other accept failure is fatal and
// initiates shutdown itself.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.WithError(err).Error("Accept failed, shutting down")
			go s.Shutdown()
			return
		}
		s.attach(newTCPLineConn(conn))
	}
}

// attach registers a new connection and starts its handler. It is the
// single entry point for both the TCP listener and the WebSocket bridge.
func (s *Server) attach(conn lineConn) *Session {
	sess := newSession(conn, s.cfg.RateLimitWindow, s.cfg.RateLimitMax)
	s.registry.Add(sess)
	s.logbook.Connection(sess.ID, conn.RemoteAddr())

	log.WithFields(log.Fields{
		"session": sess.ID,
		"remote":  conn.RemoteAddr(),
		"total":   s.registry.Count(),
	}).Info("Client connected")

	s.wg.Add(1)
	go s.handleConnection(sess)
	return sess
}

// handleConnection runs a session's read loop to completion. A panic in
// command handling is confined to this connection; the accept loop and
// every other session keep running.
func (s *Server) handleConnection(sess *Session) {
	defer s.wg.Done()
	defer s.teardown(sess)
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"session": sess.ID,
				"panic":   r,
			}).Error("Recovered from panic in connection handler")
		}
	}()

	for {
		line, err := sess.conn.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !isExpectedCloseError(err) {
				log.WithFields(log.Fields{
					"session": sess.ID,
					"error":   err,
				}).Warn("Read error, closing connection")
			}
			return
		}
		if line == "" {
			return
		}

		sess.msgTotal.Add(1)

		if sess.window.violates(time.Now()) {
			s.banIdentity(sess.DisplayName, "Rate limit exceeded")
			return
		}

		s.logbook.Transaction(sess.ID, line)
		log.WithFields(log.Fields{
			"session": sess.ID,
			"remote":  sess.RemoteAddr(),
		}).Debugf("Received: %s", line)

		if strings.HasPrefix(line, "@") {
			if s.dispatchCommand(sess, line) {
				return
			}
			continue
		}

		if sess.Permissions.Send() {
			s.Broadcast(sess, line)
		} else {
			sess.SendError("You don't have permission to send messages.")
		}
	}
}

// teardown runs the session's exit path exactly once regardless of trigger:
// disconnect log, registry removal (which clears the admin binding when
// held), and socket close.
func (s *Server) teardown(sess *Session) {
	sess.teardownOnce.Do(func() {
		s.logbook.Disconnection(sess.ID)
		s.registry.Remove(sess.ID)
		if err := sess.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.WithFields(log.Fields{
				"session": sess.ID,
				"error":   err,
			}).Warn("Error closing connection")
		}
		log.WithFields(log.Fields{
			"session": sess.ID,
			"total":   s.registry.Count(),
		}).Info("Client disconnected")
	})
}

// banIdentity appends a ban record and, when the identity maps to a live
// session, tears that session down as part of the same operation. Bans are
// not enforced at connect time; a banned identity may reconnect under a new
// session id.
func (s *Server) banIdentity(name, reason string) {
	if err := s.bans.Ban(name, reason); err != nil {
		log.WithError(err).WithField("user", name).Error("Failed to persist ban record")
	}
	log.WithFields(log.Fields{
		"user":   name,
		"reason": reason,
	}).Info("User banned")

	if sess, ok := s.registry.FindByName(name); ok {
		s.teardown(sess)
	}
}

// Shutdown tears down every session, closes the listeners, and waits for
// the handler goroutines, bounded by the configured timeout. Safe to call
// from any goroutine, including a connection handler; it runs at most once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		log.Info("Server is shutting down...")
		close(s.done)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !isExpectedCloseError(err) {
				log.WithError(err).Warn("Error closing listener")
			}
		}
		s.stopBridge()

		for _, sess := range s.registry.Snapshot() {
			s.teardown(sess)
		}

		finished := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
			log.Info("Server shutdown completed")
		case <-time.After(s.cfg.ShutdownTimeout):
			log.Warn("Shutdown timeout reached, some handlers may still be running")
		}
	})
}

// Done is closed when shutdown begins, so the process entry point can wait
// for an admin-issued `server shutdown`.
func (s *Server) Done() <-chan struct{} {
	return s.done
}
