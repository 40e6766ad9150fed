// ABOUTME: Tests for the layercast server
// ABOUTME: Covers RTCP handling, the status feed, metrics and a UDP round trip
package server

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/layercast/internal/config"
	"github.com/Resonate-Protocol/layercast/internal/protocol"
	"github.com/Resonate-Protocol/layercast/pkg/audio"
	"github.com/Resonate-Protocol/layercast/pkg/audio/source"
	"github.com/Resonate-Protocol/layercast/pkg/layered"
)

func newTestServer(t *testing.T) (*Server, *captureWriter) {
	t.Helper()
	s := New(Config{Name: "test", RTPPort: 5004, Adaptation: DefaultAdaptation()})
	w := &captureWriter{}
	eng, err := NewAudioEngine(EngineConfig{
		Source:    source.NewToneSource(source.ToneConfig{}),
		Writer:    w,
		Receivers: s.receivers,
		Metrics:   s.metrics,
	})
	require.NoError(t, err)
	s.audioEngine = eng
	return s, w
}

func TestConfigFrom(t *testing.T) {
	conf := config.DefaultServerConfig()
	conf.Limits.Total = 1000
	cfg := ConfigFrom(conf)

	assert.Equal(t, conf.RTPPort, cfg.RTPPort)
	assert.Equal(t, audio.HighestQuality(), cfg.Quality)
	assert.Equal(t, 1000, cfg.Limits.Total)
	assert.Equal(t, DefaultAdaptation(), cfg.Adaptation)
	assert.True(t, cfg.EnableMDNS)
}

func TestHandleRTCPRegistersReceivers(t *testing.T) {
	s, _ := newTestServer(t)
	from := addr(7000)

	rr, err := layered.MarshalReceiverReport(77, nil)
	require.NoError(t, err)
	s.handleRTCP(from, rr)
	assert.Equal(t, 1, s.receivers.Len())

	s.handleRTCP(from, []byte("not rtcp"))
	assert.Equal(t, 1, s.receivers.Len())

	bye, err := rtcp.Marshal([]rtcp.Packet{&rtcp.Goodbye{Sources: []uint32{77}}})
	require.NoError(t, err)
	s.handleRTCP(from, bye)
	assert.Equal(t, 0, s.receivers.Len())
}

func dialStatus(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	return msg
}

func TestStatusFeed(t *testing.T) {
	s, _ := newTestServer(t)
	s.routes()
	ts := httptest.NewServer(s.mux)
	defer ts.Close()

	require.NoError(t, s.audioEngine.Step())
	s.receivers.HandleReport(addr(7000), &rtcp.ReceiverReport{SSRC: 1}, s.audioEngine.LayerForSSRC, s.audioEngine.Usage())

	conn := dialStatus(t, ts)

	hello := readMessage(t, conn)
	require.Equal(t, protocol.TypeServerHello, hello.Type)
	assert.Equal(t, s.ID(), hello.Payload.(protocol.ServerHello).ServerID)
	assert.Equal(t, 5004, hello.Payload.(protocol.ServerHello).RTPPort)

	first := readMessage(t, conn)
	require.Equal(t, protocol.TypeServerStatus, first.Type)
	status := first.Payload.(protocol.ServerStatus)
	assert.Equal(t, 48000, status.Stream.SampleRate)
	require.Len(t, status.Receivers, 1)
	assert.Equal(t, addr(7000).String(), status.Receivers[0].Addr)

	require.NoError(t, s.audioEngine.Step())
	s.broadcastStatus()
	next := readMessage(t, conn)
	assert.Equal(t, int64(40), next.Payload.(protocol.ServerStatus).Stream.PositionMs)

	s.closeStatusClients()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	s.wg.Wait()
}

func TestStatusRejectedDuringShutdown(t *testing.T) {
	s, _ := newTestServer(t)
	s.routes()
	ts := httptest.NewServer(s.mux)
	defer ts.Close()

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	s.routes()
	ts := httptest.NewServer(s.mux)
	defer ts.Close()

	s.receivers.HandleReport(addr(7000), &rtcp.ReceiverReport{SSRC: 1}, s.audioEngine.LayerForSSRC, s.audioEngine.Usage())
	require.NoError(t, s.audioEngine.Step())

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `layercast_packet_sent_total{layer="0"}`)
	assert.Contains(t, string(body), "layercast_encoder_quality_level")
}

func TestUDPRoundTrip(t *testing.T) {
	loopback := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}
	serverConn, err := net.ListenUDP("udp", loopback)
	require.NoError(t, err)
	playerConn, err := net.ListenUDP("udp", loopback)
	require.NoError(t, err)
	defer playerConn.Close()

	s := New(Config{Name: "test", Adaptation: DefaultAdaptation()})
	s.conn = serverConn
	s.source = source.NewToneSource(source.ToneConfig{})
	require.NoError(t, s.setupEngine())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readRTCP()
	}()

	rr, err := layered.MarshalReceiverReport(1234, nil)
	require.NoError(t, err)
	_, err = playerConn.WriteToUDP(rr, serverConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.receivers.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.audioEngine.Step())

	buf := make([]byte, 2048)
	layers := map[uint8]bool{}
	playerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(layers) < layered.TransportLayers(audio.HighestQuality()) {
		n, _, err := playerConn.ReadFromUDP(buf)
		require.NoError(t, err)
		var rp rtp.Packet
		require.NoError(t, rp.Unmarshal(buf[:n]))
		layers[rp.PayloadType] = true
	}

	serverConn.Close()
	s.wg.Wait()
}
