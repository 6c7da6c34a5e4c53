// Package server persists banned identities as an append-only JSON-lines
// file. The file is the authoritative ban list across restarts that share a
// data directory.
package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BanRecord is one persisted ban. Field names match the on-disk contract.
type BanRecord struct {
	Username string    `json:"Username"`
	BannedAt time.Time `json:"BannedAt"`
	Reason   string    `json:"Reason"`
}

// BanStore appends and scans ban records. All operations serialize on the
// internal mutex; concurrent connection handlers call Ban directly.
type BanStore struct {
	mu   sync.Mutex
	path string
}

// NewBanStore creates the store, creating the parent directory if needed.
func NewBanStore(path string) (*BanStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ban list directory: %w", err)
	}
	return &BanStore{path: path}, nil
}

// Ban appends a record for the identity. Repeated bans simply append
// repeated records.
func (b *BanStore) Ban(username, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := BanRecord{Username: username, BannedAt: time.Now(), Reason: reason}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode ban record: %w", err)
	}

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ban list: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append ban record: %w", err)
	}
	return nil
}

// Unban removes the first record matching the username exactly and rewrites
// the store. It reports whether a record was found; absence is not an error.
func (b *BanStore) Unban(username string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.load()
	if err != nil {
		return false, err
	}

	idx := -1
	for i, rec := range records {
		if rec.Username == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	records = append(records[:idx], records[idx+1:]...)

	var buf bytes.Buffer
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return false, fmt.Errorf("encode ban record: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(b.path, buf.Bytes(), 0o644); err != nil {
		return false, fmt.Errorf("rewrite ban list: %w", err)
	}
	return true, nil
}

// IsBanned scans for any record matching the username. The accept path does
// not consult it; bans only remove already-connected sessions.
func (b *BanStore) IsBanned(username string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.load()
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// Records returns every persisted ban in file order.
func (b *BanStore) Records() ([]BanRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load()
}

func (b *BanStore) load() ([]BanRecord, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ban list: %w", err)
	}
	defer f.Close()

	var records []BanRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec BanRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode ban record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ban list: %w", err)
	}
	return records, nil
}
