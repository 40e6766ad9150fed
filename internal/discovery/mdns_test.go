// ABOUTME: Tests for mDNS discovery
// ABOUTME: Manager lifecycle and parsing of advertised TXT records
package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Living Room", Port: 5004, StatusPort: 8927, ServerID: "abc"})
	require.NotNil(t, mgr)
	require.NotNil(t, mgr.Servers())

	assert.ElementsMatch(t, []string{"path=/status", "server_id=abc", "status_port=8927"}, mgr.txtRecords())

	mgr.Stop()
	select {
	case <-mgr.ctx.Done():
	default:
		t.Error("expected context to be cancelled after Stop")
	}
}

func TestServerFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "Living Room." + ServiceType + ".local.",
		AddrV4:     net.IPv4(192, 168, 1, 20),
		Port:       5004,
		InfoFields: []string{"path=/status", "server_id=abc", "status_port=8927", "junk"},
	}

	info := serverFromEntry(entry)
	assert.Equal(t, "Living Room", info.Name)
	assert.Equal(t, "192.168.1.20:5004", info.Addr())
	assert.Equal(t, 8927, info.StatusPort)
	assert.Equal(t, "abc", info.ServerID)
}

func TestGetLocalIPsAreIPv4(t *testing.T) {
	ips, err := getLocalIPs()
	require.NoError(t, err)
	for _, ip := range ips {
		assert.NotNil(t, ip.To4())
		assert.False(t, ip.IsLoopback())
	}
}
