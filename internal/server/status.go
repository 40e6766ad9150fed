// ABOUTME: Websocket status feed served at /status
// ABOUTME: Sends server/hello on connect, then a server/status snapshot every second
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/layercast/internal/protocol"
)

const (
	writeDeadline = 10 * time.Second
	pingPeriod    = 30 * time.Second
)

// statusClient is one websocket subscriber
type statusClient struct {
	id       string
	conn     *websocket.Conn
	sendChan chan protocol.Message
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	client := &statusClient{
		id:       uuid.New().String(),
		conn:     conn,
		sendChan: make(chan protocol.Message, 16),
	}
	s.log.WithFields(logrus.Fields{
		"id":     client.id,
		"remote": r.RemoteAddr,
	}).Debug("Status client connected")

	s.clientsMu.Lock()
	s.clients[client.id] = client
	s.clientsMu.Unlock()

	s.sendMessage(client, protocol.TypeServerHello, s.hello())
	s.sendMessage(client, protocol.TypeServerStatus, s.Status())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	// status is one-way; reading only notices the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Debug("Status client read error")
			}
			break
		}
	}
	s.removeClient(client.id)
}

func (s *Server) removeClient(id string) {
	s.clientsMu.Lock()
	client, ok := s.clients[id]
	if ok {
		delete(s.clients, id)
		close(client.sendChan)
	}
	s.clientsMu.Unlock()
}

// clientWriter sends queued messages and keeps the connection alive
func (s *Server) clientWriter(client *statusClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer client.conn.Close()

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				client.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeDeadline))
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.log.WithError(err).Error("Error marshaling message")
				continue
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.WithError(err).Debug("Error writing status message")
				return
			}

		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// sendMessage queues a message without blocking; slow clients miss updates
func (s *Server) sendMessage(client *statusClient, msgType string, payload interface{}) error {
	select {
	case client.sendChan <- protocol.Message{Type: msgType, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("client %s send buffer full", client.id)
	}
}

func (s *Server) broadcastStatus() {
	status := s.Status()

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, client := range s.clients {
		if err := s.sendMessage(client, protocol.TypeServerStatus, status); err != nil {
			s.log.WithError(err).Debug("Dropping status update")
		}
	}
}

func (s *Server) closeStatusClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for id, client := range s.clients {
		delete(s.clients, id)
		close(client.sendChan)
	}
}
