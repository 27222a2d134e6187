package access

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tailscale/accessbot/internal/tailscale"
)

func testDevices() []tailscale.Device {
	return []tailscale.Device{
		{
			NodeID:    "node-aaa",
			Name:      "web-1.tailnet.ts.net",
			User:      "alice@example.com",
			LastSeen:  "2024-05-30T10:00:00Z",
			Addresses: []string{"100.64.0.1"},
		},
		{
			NodeID:    "node-bbb",
			Name:      "laptop.tailnet.ts.net",
			User:      "alice@example.com",
			LastSeen:  "2024-06-01T09:00:00Z",
			Addresses: []string{"100.64.0.2"},
		},
		{
			NodeID:    "node-ccc",
			Name:      "db-1.tailnet.ts.net",
			User:      "bob@example.com",
			Tags:      []string{"tag:prod"},
			LastSeen:  "2024-06-01T08:00:00Z",
			Addresses: []string{"100.64.0.3"},
		},
	}
}

func TestFilterDevices(t *testing.T) {
	devices := testDevices()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "empty query matches all", query: "", want: []string{"node-aaa", "node-bbb", "node-ccc"}},
		{name: "name substring", query: "laptop", want: []string{"node-bbb"}},
		{name: "name is case-insensitive", query: "WEB-1", want: []string{"node-aaa"}},
		{name: "node id prefix", query: "node-ccc", want: []string{"node-ccc"}},
		{name: "address prefix", query: "100.64.0.1", want: []string{"node-aaa"}},
		{name: "no match", query: "missing", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterDevices(devices, tt.query)
			var ids []string
			for _, d := range got {
				ids = append(ids, d.NodeID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestOwnDevices(t *testing.T) {
	devices := testDevices()

	// Tagged devices are excluded, results sorted by last seen,
	// newest first.
	own := OwnDevices(devices, "Alice@example.com")
	assert.Len(t, own, 2)
	assert.Equal(t, "node-bbb", own[0].NodeID)
	assert.Equal(t, "node-aaa", own[1].NodeID)

	assert.Empty(t, OwnDevices(devices, "bob@example.com"))
	assert.Nil(t, OwnDevices(devices, ""))
}

func TestOwnDevices_Cap(t *testing.T) {
	many := make([]tailscale.Device, 0, 100)
	for i := range 100 {
		many = append(many, tailscale.Device{
			NodeID:   fmt.Sprintf("node%03d", i),
			User:     "alice@example.com",
			LastSeen: fmt.Sprintf("2024-06-01T%02d:%02d:00Z", i/60, i%60),
		})
	}

	own := OwnDevices(many, "alice@example.com")
	assert.Len(t, own, maxOwnDeviceOptions)
	assert.Equal(t, "node099", own[0].NodeID)
}

func TestTopDevices(t *testing.T) {
	many := make([]tailscale.Device, 30)
	assert.Len(t, TopDevices(many), maxAllDeviceOptions)

	few := make([]tailscale.Device, 5)
	assert.Len(t, TopDevices(few), 5)
}
