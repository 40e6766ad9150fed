// ABOUTME: Tests for status feed messages
// ABOUTME: Checks typed decoding of each message type
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStatus(t *testing.T) {
	in := Message{
		Type: TypeServerStatus,
		Payload: ServerStatus{
			ServerID: "abc",
			Stream:   StreamInfo{SampleRate: 48000, Bits: 16, Channels: 2, Layers: 3},
			Receivers: []ReceiverStatus{{
				ID:     "r1",
				Addr:   "10.0.0.2:5004",
				Layers: []LayerLimit{{Layer: 0, BytesPerSecond: 32000, FractionLost: 0.5}},
			}},
		},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	status, ok := msg.Payload.(ServerStatus)
	require.True(t, ok)
	assert.Equal(t, 48000, status.Stream.SampleRate)
	require.Len(t, status.Receivers, 1)
	assert.Equal(t, 0.5, status.Receivers[0].Layers[0].FractionLost)
}

func TestDecodeHello(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"server/hello","payload":{"server_id":"x","name":"den","rtp_port":5004}}`))
	require.NoError(t, err)
	hello := msg.Payload.(ServerHello)
	assert.Equal(t, "den", hello.Name)
	assert.Equal(t, 5004, hello.RTPPort)
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode([]byte(`{"type":"player/update","payload":{}}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}
