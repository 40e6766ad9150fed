// ABOUTME: Tests for the status feed client
// ABOUTME: Runs against an httptest websocket server speaking the status protocol
package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/layercast/internal/protocol"
)

func newFeed(t *testing.T, first protocol.Message, rest ...protocol.Message) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(first)
		for _, m := range rest {
			_ = conn.WriteJSON(m)
		}
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestClientReceivesStatus(t *testing.T) {
	addr := newFeed(t,
		protocol.Message{Type: protocol.TypeServerHello, Payload: protocol.ServerHello{Name: "kitchen", Version: "0.3.0", RTPPort: 5004}},
		protocol.Message{Type: protocol.TypeServerStatus, Payload: protocol.ServerStatus{
			ServerID: "abc",
			Stream:   protocol.StreamInfo{SampleRate: 48000, Bits: 16, Channels: 2, Layers: 3},
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient(Config{ServerAddr: addr})
	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, "kitchen", c.Hello().Name)
	assert.Equal(t, 5004, c.Hello().RTPPort)

	select {
	case st := <-c.Status:
		assert.Equal(t, "abc", st.ServerID)
		assert.Equal(t, 48000, st.Stream.SampleRate)
		assert.Equal(t, 3, st.Stream.Layers)
	case <-time.After(2 * time.Second):
		t.Fatal("no status received")
	}

	cancel()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not end after cancel")
	}
}

func TestClientRejectsMissingHello(t *testing.T) {
	addr := newFeed(t, protocol.Message{Type: protocol.TypeServerStatus, Payload: protocol.ServerStatus{ServerID: "abc"}})

	c := NewClient(Config{ServerAddr: addr})
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), protocol.TypeServerHello)
}

func TestClientDialFailure(t *testing.T) {
	c := NewClient(Config{ServerAddr: "127.0.0.1:1"})
	assert.Error(t, c.Connect(context.Background()))
}
