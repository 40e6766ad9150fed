// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling and rendering
package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/layercast/pkg/layered"
)

func sized(m Model) Model {
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func key(m Model, k string) Model {
	var msg tea.KeyMsg
	switch k {
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	updated, _ := m.Update(msg)
	return updated.(Model)
}

func TestNewModel(t *testing.T) {
	m := NewModel(nil, 80)
	assert.False(t, m.connected)
	assert.Equal(t, 80, m.volume)
	assert.False(t, m.muted)
	assert.Equal(t, "Loading...", m.View())
}

func TestStatusConnected(t *testing.T) {
	m := NewModel(nil, 100)
	connected := true
	m.applyStatus(StatusMsg{Connected: &connected, ServerName: "10.0.0.2:5004"})
	assert.True(t, m.connected)
	assert.Contains(t, sized(m).View(), "Receiving from 10.0.0.2:5004")

	disconnected := false
	m.applyStatus(StatusMsg{Connected: &disconnected})
	assert.False(t, m.connected)
	assert.Equal(t, "10.0.0.2:5004", m.serverName)
}

func TestStatusStreamAndMetadata(t *testing.T) {
	m := NewModel(nil, 100)
	m.applyStatus(StatusMsg{
		SampleRate: 22050,
		Bits:       12,
		Channels:   1,
		Layers:     2,
		Title:      "Song",
		Artist:     "Band",
		Position:   65 * time.Second,
		Duration:   3 * time.Minute,
	})

	view := sized(m).View()
	assert.Contains(t, view, "22050Hz Mono 12-bit, 2 layers")
	assert.Contains(t, view, "Song")
	assert.Contains(t, view, "Band")
	assert.Contains(t, view, "1m5s / 3m0s")

	// a format-only update keeps metadata
	m.applyStatus(StatusMsg{SampleRate: 48000, Bits: 16, Channels: 2, Layers: 3})
	assert.Equal(t, "Song", m.title)
	assert.Equal(t, 48000, m.sampleRate)
}

func TestStatusErrorCodeClears(t *testing.T) {
	m := NewModel(nil, 100)
	m.applyStatus(StatusMsg{SampleRate: 8000, ErrorCode: "end of stream"})
	assert.Contains(t, sized(m).View(), "end of stream")

	m.applyStatus(StatusMsg{})
	assert.Empty(t, m.errorCode)
}

func TestStatusStats(t *testing.T) {
	m := NewModel(nil, 100)
	m.applyStatus(StatusMsg{Stats: &layered.DecoderStats{Received: 100, Rendered: 40, Dropped: 3, Repaired: 7}, Buffered: 4})

	view := sized(m).View()
	assert.Contains(t, view, "RX: 100  Played: 40  Dropped: 3  Repaired: 7")
	assert.Contains(t, view, "4 frames (160ms)")

	m.applyStatus(StatusMsg{})
	assert.Equal(t, uint64(100), m.stats.Received, "stats kept without a new snapshot")
}

func TestVolumeKeys(t *testing.T) {
	ctrl := NewVolumeControl()
	m := NewModel(ctrl, 98)

	m = key(m, "up")
	assert.Equal(t, 100, m.volume)
	m = key(m, "down")
	m = key(m, "down")
	assert.Equal(t, 90, m.volume)
	m = key(m, "m")
	assert.True(t, m.muted)

	var last VolumeChangeMsg
	for i := 0; i < 4; i++ {
		last = <-ctrl.Changes
	}
	assert.Equal(t, VolumeChangeMsg{Volume: 90, Muted: true}, last)

	for i := 0; i < 30; i++ {
		m = key(m, "down")
	}
	assert.Equal(t, 0, m.volume)
}

func TestQuitKey(t *testing.T) {
	ctrl := NewVolumeControl()
	m := NewModel(ctrl, 100)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)

	select {
	case <-ctrl.Quit:
	default:
		t.Fatal("quit not signalled")
	}
}

func TestDebugToggle(t *testing.T) {
	m := sized(NewModel(nil, 100))
	assert.NotContains(t, m.View(), "DEBUG")
	m = key(m, "d")
	assert.Contains(t, m.View(), "DEBUG")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "this is...", truncate("this is too long", 10))
	assert.Equal(t, "ééé...", truncate("éééééééé", 6))
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("█", 5)+strings.Repeat("░", 5), renderBar(50, 100, 10))
	assert.Equal(t, strings.Repeat("░", 10), renderBar(0, 100, 10))
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "Mono", channelName(1))
	assert.Equal(t, "Stereo", channelName(2))
}
