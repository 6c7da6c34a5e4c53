package server

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		records = append(records, rec)
	}
	return records
}

func TestLogbookConnectionRecords(t *testing.T) {
	lb, err := NewLogbook(t.TempDir())
	require.NoError(t, err)

	lb.Connection("client-1", "10.0.0.7:5555")
	lb.Disconnection("client-1")

	records := readRecords(t, lb.connPath)
	require.Len(t, records, 2)

	assert.Equal(t, "client-1", records[0]["ClientId"])
	assert.Equal(t, "10.0.0.7:5555", records[0]["IpAddress"])
	assert.Contains(t, records[0], "ConnectedAt")

	assert.Equal(t, "client-1", records[1]["ClientId"])
	assert.Contains(t, records[1], "DisconnectedAt")
	assert.NotContains(t, records[1], "IpAddress")
}

func TestLogbookTransactionRecords(t *testing.T) {
	lb, err := NewLogbook(t.TempDir())
	require.NoError(t, err)

	lb.Transaction("client-1", "hello")
	lb.Transaction("client-1", "BROADCAST: hello")

	records := readRecords(t, lb.txPath)
	require.Len(t, records, 2)
	assert.Equal(t, "hello", records[0]["Message"])
	assert.Equal(t, "BROADCAST: hello", records[1]["Message"])
	assert.Contains(t, records[0], "Timestamp")
}
