// ABOUTME: Server TUI for displaying the stream and its receivers
// ABOUTME: Real-time server status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ServerTUI manages the server TUI
type ServerTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{}

	mu     sync.Mutex
	closed bool
}

// ServerStatus holds server state for the TUI
type ServerStatus struct {
	Name      string
	RTPPort   int
	Title     string
	Quality   string
	Layers    int
	Position  time.Duration
	Duration  time.Duration
	Suspended bool
	Receivers []ReceiverInfo
}

// ReceiverInfo holds one receiver line
type ReceiverInfo struct {
	Addr   string
	Loss   [3]float64
	Limits [3]int
}

type tuiModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg ServerStatus

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	sectionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	footnoteStyle = lipgloss.NewStyle().Faint(true)
)

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	var b strings.Builder
	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	b.WriteString(titleStyle.Render("Layercast Server"))
	b.WriteString("\n\n")

	field("Server", m.status.Name)
	field("RTP port", fmt.Sprintf("%d", m.status.RTPPort))
	field("Uptime", time.Since(m.startTime).Round(time.Second).String())
	field("Playing", m.status.Title)

	quality := m.status.Quality
	if quality == "" {
		quality = "-"
	}
	field("Quality", fmt.Sprintf("%s (%d layers)", quality, m.status.Layers))

	position := m.status.Position.Round(time.Second).String()
	if m.status.Duration > 0 {
		position += " / " + m.status.Duration.Round(time.Second).String()
	}
	field("Position", position)
	if m.status.Suspended {
		b.WriteString(warningStyle.Render("Stream ended"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Receivers (%d)", len(m.status.Receivers))))
	b.WriteString("\n\n")

	if len(m.status.Receivers) == 0 {
		b.WriteString(valueStyle.Render("  No receivers reporting"))
		b.WriteString("\n")
	}
	for _, r := range m.status.Receivers {
		b.WriteString(fmt.Sprintf("  • %s", r.Addr))
		b.WriteString(valueStyle.Render(fmt.Sprintf("  loss %s  ceiling %s", formatLoss(r.Loss), formatLimits(r.Limits))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(footnoteStyle.Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

func formatLoss(loss [3]float64) string {
	parts := make([]string, len(loss))
	for i, l := range loss {
		parts[i] = fmt.Sprintf("%.0f%%", l*100)
	}
	return strings.Join(parts, "/")
}

func formatLimits(limits [3]int) string {
	parts := make([]string, len(limits))
	for i, l := range limits {
		if l == 0 {
			parts[i] = "-"
			continue
		}
		parts[i] = fmt.Sprintf("%dk", l/1000)
	}
	return strings.Join(parts, "/")
}

// NewServerTUI creates a new server TUI
func NewServerTUI() *ServerTUI {
	return &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until it quits
func (t *ServerTUI) Start(serverName string, port int) error {
	m := tuiModel{
		status: ServerStatus{
			Name:    serverName,
			RTPPort: port,
			Title:   "Initializing...",
		},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	program := tea.NewProgram(m, tea.WithAltScreen())
	t.mu.Lock()
	t.program = program
	t.mu.Unlock()

	go func() {
		for status := range t.updates {
			program.Send(statusMsg(status))
		}
	}()

	_, err := program.Run()
	return err
}

// Update sends a status update to the TUI without blocking
func (t *ServerTUI) Update(status ServerStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.updates <- status:
	default:
	}
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan signals when the user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
