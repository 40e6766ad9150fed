// ABOUTME: Tests for the server TUI model
// ABOUTME: Checks rendering of stream and receiver status
package server

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTUIViewShowsReceivers(t *testing.T) {
	m := tuiModel{startTime: time.Now(), quitChan: make(chan struct{}, 1)}
	updated, _ := m.Update(statusMsg(ServerStatus{
		Name:     "den",
		RTPPort:  5004,
		Title:    "Artist - Song",
		Quality:  "48000Hz/16bit/2ch",
		Layers:   3,
		Position: 90 * time.Second,
		Receivers: []ReceiverInfo{
			{Addr: "10.0.0.2:5004", Loss: [3]float64{0, 0.25, 0}, Limits: [3]int{0, 30000, 0}},
		},
	}))

	view := updated.View()
	assert.Contains(t, view, "den")
	assert.Contains(t, view, "48000Hz/16bit/2ch (3 layers)")
	assert.Contains(t, view, "Receivers (1)")
	assert.Contains(t, view, "10.0.0.2:5004")
	assert.Contains(t, view, "0%/25%/0%")
	assert.Contains(t, view, "-/30k/-")
}

func TestTUIQuitSignalsServer(t *testing.T) {
	quit := make(chan struct{}, 1)
	m := tuiModel{quitChan: quit}
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, "Shutting down server...\n", updated.View())

	select {
	case <-quit:
	default:
		t.Fatal("quit was not signalled")
	}
}

func TestTUIStatusFromServer(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.audioEngine.Step())
	s.receivers.HandleReport(addr(7000), &rtcp.ReceiverReport{SSRC: 1}, s.audioEngine.LayerForSSRC, s.audioEngine.Usage())

	st := s.tuiStatus()
	assert.Equal(t, "test", st.Name)
	assert.Equal(t, "48000Hz/16bit/2ch", st.Quality)
	assert.Equal(t, "layercast - Test Tone", st.Title)
	require.Len(t, st.Receivers, 1)

	// no TUI attached is a no-op
	s.updateTUI()
}

func TestServerTUIStopIsIdempotent(t *testing.T) {
	tui := NewServerTUI()
	tui.Update(ServerStatus{Name: "x"})
	tui.Stop()
	tui.Stop()
	tui.Update(ServerStatus{Name: "y"})
}
