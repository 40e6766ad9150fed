// ABOUTME: Bubbletea model for player TUI
// ABOUTME: Shows stream quality, metadata, position and decoder statistics
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/layercast/pkg/layered"
)

const volumeStep = 5

// Model represents the TUI state
type Model struct {
	connected  bool
	serverName string

	sampleRate int
	bits       int
	channels   int
	layers     int

	title   string
	artist  string
	comment string

	position  time.Duration
	duration  time.Duration
	errorCode string

	volume int
	muted  bool

	stats    layered.DecoderStats
	buffered int

	showDebug bool

	width  int
	height int

	volumeCtrl *VolumeControl
}

// StatusMsg updates TUI state. Zero fields leave the current value, except
// ErrorCode which is replaced every time.
type StatusMsg struct {
	Connected  *bool
	ServerName string
	SampleRate int
	Bits       int
	Channels   int
	Layers     int
	Title      string
	Artist     string
	Comment    string
	Position   time.Duration
	Duration   time.Duration
	ErrorCode  string
	Stats      *layered.DecoderStats
	Buffered   int
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderStreamInfo())
	b.WriteString(m.renderControls())
	b.WriteString(m.renderStats())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	status := "Waiting for stream"
	if m.connected {
		status = fmt.Sprintf("Receiving from %s", m.serverName)
	}
	return fmt.Sprintf(`┌─ Layercast Player ───────────────────────────────────┐
│ Status: %-44s │
├──────────────────────────────────────────────────────┤
`, truncate(status, 44))
}

func (m Model) renderStreamInfo() string {
	if m.sampleRate == 0 {
		return "│ No stream                                            │\n"
	}

	var b strings.Builder
	b.WriteString("│ Now Playing:                                         │\n")
	if m.title != "" {
		fmt.Fprintf(&b, "│   Track:  %-42s │\n", truncate(m.title, 42))
		fmt.Fprintf(&b, "│   Artist: %-42s │\n", truncate(m.artist, 42))
		if m.comment != "" {
			fmt.Fprintf(&b, "│   Note:   %-42s │\n", truncate(m.comment, 42))
		}
	} else {
		b.WriteString("│   (No metadata)                                      │\n")
	}
	b.WriteString("│                                                      │\n")

	format := fmt.Sprintf("%dHz %s %d-bit, %d layers", m.sampleRate, channelName(m.channels), m.bits, m.layers)
	fmt.Fprintf(&b, "│ Format: %-44s │\n", truncate(format, 44))
	fmt.Fprintf(&b, "│ Time:   %-44s │\n", formatPosition(m.position, m.duration))
	if m.errorCode != "" {
		fmt.Fprintf(&b, "│ Error:  %-44s │\n", truncate(m.errorCode, 44))
	}
	return b.String()
}

func (m Model) renderControls() string {
	mute := ""
	if m.muted {
		mute = " (muted)"
	}
	volume := fmt.Sprintf("[%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, mute)
	buffer := fmt.Sprintf("%d frames (%s)", m.buffered, time.Duration(m.buffered)*layered.FrameDuration)
	return fmt.Sprintf("│                                                      │\n"+
		"│ Volume: %-44s │\n"+
		"│ Buffer: %-44s │\n", volume, buffer)
}

func (m Model) renderStats() string {
	line := fmt.Sprintf("RX: %d  Played: %d  Dropped: %d  Repaired: %d",
		m.stats.Received, m.stats.Rendered, m.stats.Dropped, m.stats.Repaired)
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ %-52s │
│                                                      │
`, truncate(line, 52))
}

func (m Model) renderHelp() string {
	return `│ ↑/↓:Volume  m:Mute  d:Debug  q:Quit                  │
└──────────────────────────────────────────────────────┘
`
}

func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Accepted: %-10d Malformed: %-10d         │
│   Duplicates: %-8d Flushes: %-8d Aborted: %-4d│
│   Late: %-12d                                 │
`, m.stats.Accepted, m.stats.Malformed, m.stats.Duplicates, m.stats.Flushes, m.stats.Aborted, m.stats.Late)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.volumeCtrl != nil {
			select {
			case m.volumeCtrl.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+volumeStep, 100)
		m.notifyVolume()
	case "down":
		m.volume = max(m.volume-volumeStep, 0)
		m.notifyVolume()
	case "m":
		m.muted = !m.muted
		m.notifyVolume()
	case "d":
		m.showDebug = !m.showDebug
	}
	return m, nil
}

func (m Model) notifyVolume() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.SampleRate != 0 {
		m.sampleRate = msg.SampleRate
		m.bits = msg.Bits
		m.channels = msg.Channels
		m.layers = msg.Layers
	}
	if msg.Title != "" || msg.Artist != "" {
		m.title = msg.Title
		m.artist = msg.Artist
		m.comment = msg.Comment
	}
	if msg.Position != 0 {
		m.position = msg.Position
		m.duration = msg.Duration
	}
	m.errorCode = msg.ErrorCode
	if msg.Stats != nil {
		m.stats = *msg.Stats
		m.buffered = msg.Buffered
	}
}

func formatPosition(position, duration time.Duration) string {
	s := position.Round(time.Second).String()
	if duration > 0 {
		s += " / " + duration.Round(time.Second).String()
	}
	return s
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len([]rune(s)) <= length {
		return s
	}
	return string([]rune(s)[:length-3]) + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}
