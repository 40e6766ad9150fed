// ABOUTME: Layercast player receiving RTP over UDP into a layered decoder
// ABOUTME: Sends RTCP receiver reports so the server registers it and adapts quality
package player

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
	"github.com/Resonate-Protocol/layercast/pkg/layered"
)

// Config holds player configuration
type Config struct {
	ServerAddr      string
	FrameBufferSize int
	TimerPeriod     time.Duration
	ReportInterval  time.Duration
	Clock           layered.Clock

	// OnStatus is called after every report with a fresh snapshot
	OnStatus func(Status)
}

// Status is a snapshot of playback
type Status struct {
	Server      string
	Format      layered.Format
	Position    time.Duration
	MaxPosition time.Duration
	Metadata    layered.Metadata
	ErrorCode   audio.ErrorCode
	Buffered    int
	Stats       layered.DecoderStats
	Layers      int
}

// Player receives and renders a layercast stream
type Player struct {
	config  Config
	server  *net.UDPAddr
	conn    *net.UDPConn
	decoder *layered.Decoder
	ssrc    uint32

	mu      sync.Mutex
	running bool

	wg  sync.WaitGroup
	log *logrus.Entry
}

// New creates a player rendering into sink
func New(cfg Config, sink layered.Sink) (*Player, error) {
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = time.Second
	}
	server, err := net.ResolveUDPAddr("udp", cfg.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve server %q: %w", cfg.ServerAddr, err)
	}

	ssrc := rand.Uint32()
	for ssrc == 0 {
		ssrc = rand.Uint32()
	}

	return &Player{
		config: cfg,
		server: server,
		decoder: layered.NewDecoder(layered.DecoderConfig{
			Sink:            sink,
			FrameBufferSize: cfg.FrameBufferSize,
			TimerPeriod:     cfg.TimerPeriod,
			Clock:           cfg.Clock,
		}),
		ssrc: ssrc,
		log:  logrus.WithField("component", "player"),
	}, nil
}

// Decoder exposes the layered decoder, for metrics
func (p *Player) Decoder() *layered.Decoder { return p.decoder }

// Run receives until ctx ends, then says goodbye and releases the socket
func (p *Player) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("player already running")
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to open UDP socket: %w", err)
	}
	p.conn = conn
	p.running = true
	p.mu.Unlock()

	p.log.WithFields(logrus.Fields{
		"server": p.server.String(),
		"local":  conn.LocalAddr().String(),
	}).Info("Player starting")

	p.decoder.Start(ctx)

	// the first report registers us with the server
	p.sendReport()

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.receiveLoop()
	}()
	go func() {
		defer p.wg.Done()
		p.reportLoop(ctx)
	}()

	<-ctx.Done()

	p.sendGoodbye()
	conn.Close()
	p.wg.Wait()
	p.decoder.Stop()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.log.Info("Player stopped")
	return nil
}

func (p *Player) receiveLoop() {
	buf := make([]byte, 2048)
	for {
		n, _, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			p.log.WithError(err).Warn("UDP read failed")
			continue
		}
		p.decoder.Receive(buf[:n])
	}
}

func (p *Player) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(p.config.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sendReport()
			if p.config.OnStatus != nil {
				p.config.OnStatus(p.Status())
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Player) sendReport() {
	data, err := layered.MarshalReceiverReport(p.ssrc, p.decoder.ReceptionReports())
	if err != nil {
		p.log.WithError(err).Error("Failed to build receiver report")
		return
	}
	if _, err := p.conn.WriteToUDP(data, p.server); err != nil {
		p.log.WithError(err).Debug("Failed to send receiver report")
	}
}

func (p *Player) sendGoodbye() {
	data, err := rtcp.Marshal([]rtcp.Packet{&rtcp.Goodbye{Sources: []uint32{p.ssrc}}})
	if err != nil {
		return
	}
	if _, err := p.conn.WriteToUDP(data, p.server); err != nil {
		p.log.WithError(err).Debug("Failed to send goodbye")
	}
}

// Status returns a snapshot of playback
func (p *Player) Status() Status {
	format := p.decoder.Format()
	st := Status{
		Server:      p.server.String(),
		Format:      format,
		Position:    p.decoder.Position(),
		MaxPosition: p.decoder.MaxPosition(),
		Metadata:    p.decoder.Metadata(),
		ErrorCode:   p.decoder.ErrorCode(),
		Buffered:    p.decoder.BufferedFrames(),
		Stats:       p.decoder.Stats(),
	}
	if q, ok := audio.LookupQuality(format.SampleRate, format.Bits, format.Channels); ok {
		st.Layers = layered.TransportLayers(q)
	}
	return st
}
