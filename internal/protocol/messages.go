// ABOUTME: JSON messages carried by the server's /status websocket
// ABOUTME: A snapshot of the encoder, the stream and every live receiver
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types
const (
	TypeServerHello  = "server/hello"
	TypeServerStatus = "server/status"
)

// Message is the top-level wrapper for all status messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ServerHello is sent once when a status client connects
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	RTPPort  int    `json:"rtp_port"`
}

// StreamInfo describes the current frame format and track
type StreamInfo struct {
	SampleRate int    `json:"sample_rate"`
	Bits       int    `json:"bits"`
	Channels   int    `json:"channels"`
	Level      int    `json:"level"`
	Layers     int    `json:"layers"`
	PositionMs int64  `json:"position_ms"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Title      string `json:"title,omitempty"`
	Artist     string `json:"artist,omitempty"`
	Suspended  bool   `json:"suspended,omitempty"`
}

// LayerLimit is the ceiling applied to one transport layer, 0 for none
type LayerLimit struct {
	Layer          int     `json:"layer"`
	BytesPerSecond int     `json:"bytes_per_second"`
	FractionLost   float64 `json:"fraction_lost"`
}

// ReceiverStatus describes one receiver session
type ReceiverStatus struct {
	ID       string       `json:"id"`
	Addr     string       `json:"addr"`
	LastSeen time.Time    `json:"last_seen"`
	Jitter   uint32       `json:"jitter"`
	Layers   []LayerLimit `json:"layers"`
}

// ServerStatus is pushed to status clients every second
type ServerStatus struct {
	ServerID  string           `json:"server_id"`
	Stream    StreamInfo       `json:"stream"`
	Receivers []ReceiverStatus `json:"receivers"`
}

// envelope is Message with the payload left raw for decoding
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses a message, typing the payload by its type field
func Decode(data []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	msg := &Message{Type: env.Type}
	switch env.Type {
	case TypeServerHello:
		var hello ServerHello
		if err := json.Unmarshal(env.Payload, &hello); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", env.Type, err)
		}
		msg.Payload = hello
	case TypeServerStatus:
		var status ServerStatus
		if err := json.Unmarshal(env.Payload, &status); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", env.Type, err)
		}
		msg.Payload = status
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
	return msg, nil
}
