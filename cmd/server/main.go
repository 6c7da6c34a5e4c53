// The server command runs the chat relay. It loads configuration from the
// environment, starts the TCP listener and the WebSocket bridge, and shuts
// down gracefully on SIGINT/SIGTERM or an admin-issued server shutdown.
package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/mrrobotnet/chatrelay/internal/server"
)

func main() {
	setupLogging()

	cfg, err := server.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize server")
	}

	if err := srv.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("Received signal %s, shutting down...", sig)
		srv.Shutdown()
	case <-srv.Done():
		// Shutdown was initiated by an admin command or a fatal accept
		// error; Shutdown has already run.
	}
}

func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
	if level, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}
}
