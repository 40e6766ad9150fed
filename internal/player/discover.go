// ABOUTME: Finds a layercast server on the local network via mDNS
// ABOUTME: Used when the player is started without a server address
package player

import (
	"context"
	"errors"
	"time"

	"github.com/Resonate-Protocol/layercast/internal/discovery"
)

var ErrNoServer = errors.New("no server found")

// Discover browses for servers and returns the first one found
func Discover(ctx context.Context, timeout time.Duration) (*discovery.ServerInfo, error) {
	mgr := discovery.NewManager(discovery.Config{})
	defer mgr.Stop()

	if err := mgr.Browse(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return firstServer(ctx, mgr.Servers())
}

func firstServer(ctx context.Context, servers <-chan *discovery.ServerInfo) (*discovery.ServerInfo, error) {
	select {
	case server := <-servers:
		return server, nil
	case <-ctx.Done():
		return nil, ErrNoServer
	}
}
