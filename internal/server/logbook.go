// Package server writes the append-only audit logs: one connection log for
// connects/disconnects and one transaction log for inbound messages. A
// persistence failure is logged and the operation treated as failed; it
// never takes down the server or the requesting connection.
package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type connectedRecord struct {
	ClientId    string    `json:"ClientId"`
	IpAddress   string    `json:"IpAddress"`
	ConnectedAt time.Time `json:"ConnectedAt"`
}

type disconnectedRecord struct {
	ClientId       string    `json:"ClientId"`
	DisconnectedAt time.Time `json:"DisconnectedAt"`
}

type transactionRecord struct {
	ClientId  string    `json:"ClientId"`
	Message   string    `json:"Message"`
	Timestamp time.Time `json:"Timestamp"`
}

// Logbook owns the per-run log files under the server's data directory.
type Logbook struct {
	mu       sync.Mutex
	connPath string
	txPath   string
}

// NewLogbook lays out the run directory and returns the logbook. Layout
// under root: nodes/client/all/list.json for the connection log and
// transactions/<txID>/list.json for the transaction log.
func NewLogbook(root string) (*Logbook, error) {
	connDir := filepath.Join(root, "nodes", "client", "all")
	txDir := filepath.Join(root, "transactions", uuid.NewString())
	for _, dir := range []string{connDir, txDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	return &Logbook{
		connPath: filepath.Join(connDir, "list.json"),
		txPath:   filepath.Join(txDir, "list.json"),
	}, nil
}

// Connection records a client connect with its peer address.
func (l *Logbook) Connection(clientID, ipAddress string) {
	l.append(l.connPath, connectedRecord{
		ClientId:    clientID,
		IpAddress:   ipAddress,
		ConnectedAt: time.Now(),
	})
}

// Disconnection records a client disconnect.
func (l *Logbook) Disconnection(clientID string) {
	l.append(l.connPath, disconnectedRecord{
		ClientId:       clientID,
		DisconnectedAt: time.Now(),
	})
}

// Transaction records one inbound message.
func (l *Logbook) Transaction(clientID, message string) {
	l.append(l.txPath, transactionRecord{
		ClientId:  clientID,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func (l *Logbook) append(path string, record any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(record)
	if err != nil {
		log.WithError(err).WithField("path", path).Error("Failed to encode log record")
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.WithError(err).WithField("path", path).Error("Failed to open log file")
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		log.WithError(err).WithField("path", path).Error("Failed to append log record")
	}
}
