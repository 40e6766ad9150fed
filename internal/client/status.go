// ABOUTME: Websocket client for a layercast server's /status feed
// ABOUTME: Performs the server/hello handshake then delivers status snapshots
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/layercast/internal/protocol"
)

const handshakeTimeout = 5 * time.Second

// Config holds status client configuration
type Config struct {
	// ServerAddr is the host:port of the status HTTP server
	ServerAddr string
}

// Client follows one server's status feed
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.Mutex
	hello  protocol.ServerHello

	// Status receives every snapshot; slow readers miss intermediate ones
	Status chan protocol.ServerStatus

	done chan struct{}
	log  *logrus.Entry
}

// NewClient creates a status client
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		Status: make(chan protocol.ServerStatus, 4),
		done:   make(chan struct{}),
		log:    logrus.WithField("component", "status-client"),
	}
}

// Connect dials the feed and waits for server/hello
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: "/status"}
	c.log.WithField("url", u.String()).Debug("Connecting to status feed")

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	msg, err := readMessage(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	hello, ok := msg.Payload.(protocol.ServerHello)
	if !ok {
		conn.Close()
		return fmt.Errorf("expected %s, got %s", protocol.TypeServerHello, msg.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	c.hello = hello
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"server":  hello.Name,
		"version": hello.Version,
	}).Info("Status feed connected")

	go c.readMessages()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()
	return nil
}

// Hello returns the server's handshake message
func (c *Client) Hello() protocol.ServerHello {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hello
}

// Done is closed when the feed ends
func (c *Client) Done() <-chan struct{} { return c.done }

func readMessage(conn *websocket.Conn) (*protocol.Message, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.Decode(data)
}

func (c *Client) readMessages() {
	defer close(c.done)

	for {
		msg, err := readMessage(c.conn)
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("Status feed ended")
			}
			return
		}

		status, ok := msg.Payload.(protocol.ServerStatus)
		if !ok {
			continue
		}
		select {
		case c.Status <- status:
		default:
			c.log.Debug("Status channel full, dropping snapshot")
		}
	}
}

// Close ends the feed
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
}
