// ABOUTME: Audio streaming engine for the layercast server
// ABOUTME: Runs the layered encoder once per frame and fans RTP packets out to receivers
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/layercast/internal/metrics"
	"github.com/Resonate-Protocol/layercast/internal/protocol"
	"github.com/Resonate-Protocol/layercast/pkg/audio"
	"github.com/Resonate-Protocol/layercast/pkg/audio/source"
	"github.com/Resonate-Protocol/layercast/pkg/layered"
)

// PacketWriter sends one datagram; *net.UDPConn satisfies it
type PacketWriter interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// EngineConfig wires an engine to its source and transport
type EngineConfig struct {
	Source         source.AudioSource
	Quality        audio.Quality
	Limits         layered.Limits
	DecrementSteps int
	MaxPacketSize  int
	Writer         PacketWriter
	Receivers      *Registry
	Metrics        *metrics.ServerMetrics
}

// AudioEngine manages encoding and streaming
type AudioEngine struct {
	source     source.AudioSource
	encoder    *layered.Encoder
	packetizer *layered.Packetizer
	writer     PacketWriter
	receivers  *Registry
	metrics    *metrics.ServerMetrics

	maxPacketSize int
	baseLimits    layered.Limits
	params        layered.PacketParams
	full          layered.Bandwidth

	mu        sync.RWMutex
	stream    protocol.StreamInfo
	usage     layered.Bandwidth
	suspended bool

	stopChan chan struct{}
	stopOnce sync.Once
	log      *logrus.Entry
}

// NewAudioEngine creates an engine and its encoder
func NewAudioEngine(cfg EngineConfig) (*AudioEngine, error) {
	if cfg.Writer == nil || cfg.Receivers == nil || cfg.Metrics == nil {
		return nil, errors.New("audio engine needs a writer, receivers and metrics")
	}
	if cfg.MaxPacketSize == 0 {
		cfg.MaxPacketSize = layered.DefaultMaxPacketSize
	}
	if cfg.Quality.IsZero() {
		cfg.Quality = audio.HighestQuality()
	}

	params := layered.DefaultPacketParams()
	params.MaxPacketSize = cfg.MaxPacketSize

	enc, err := layered.NewEncoder(layered.EncoderConfig{
		Source:         cfg.Source,
		Quality:        cfg.Quality,
		Limits:         cfg.Limits,
		DecrementSteps: cfg.DecrementSteps,
		Packet:         params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	top := audio.Min(cfg.Quality, source.Quality(cfg.Source))
	title, artist, _ := cfg.Source.Metadata()

	return &AudioEngine{
		source:        cfg.Source,
		encoder:       enc,
		packetizer:    layered.NewPacketizer(),
		writer:        cfg.Writer,
		receivers:     cfg.Receivers,
		metrics:       cfg.Metrics,
		maxPacketSize: cfg.MaxPacketSize,
		baseLimits:    cfg.Limits,
		params:        params,
		full:          layered.EstimateBandwidth(top, params),
		stream: protocol.StreamInfo{
			Title:      title,
			Artist:     artist,
			DurationMs: cfg.Source.Duration().Milliseconds(),
		},
		stopChan: make(chan struct{}),
		log:      logrus.WithField("component", "audio-engine"),
	}, nil
}

// Start runs one step per frame until Stop or the stream is suspended
func (e *AudioEngine) Start() {
	e.log.WithField("frame", layered.FrameDuration).Info("Audio engine starting")

	ticker := time.NewTicker(layered.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.Step(); err != nil {
				if layered.IsSuspended(err) {
					e.log.WithField("code", e.encoder.ErrorCode()).Info("Stream ended, encoder suspended")
					return
				}
				e.log.WithError(err).Error("Failed to encode frame")
			}
		case <-e.stopChan:
			e.log.Info("Audio engine stopping")
			return
		}
	}
}

// Stop stops the audio engine
func (e *AudioEngine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
}

// Step encodes one frame under the tightest receiver ceilings and sends
// every packet of it to every live receiver
func (e *AudioEngine) Step() error {
	e.encoder.SetBandwidthLimits(e.baseLimits.Min(e.receivers.Limits()))

	if err := e.encoder.PrepareNextFrame(); err != nil {
		if layered.IsSuspended(err) {
			e.mu.Lock()
			e.suspended = true
			e.stream.Suspended = true
			e.mu.Unlock()
		}
		return err
	}

	addrs := e.receivers.Addrs()
	for {
		pkt, ok := e.encoder.GetNextPacket(e.maxPacketSize)
		if !ok {
			break
		}
		raw, err := e.packetizer.Packetize(pkt)
		if err != nil {
			e.log.WithError(err).Warn("Failed to packetize")
			continue
		}
		for _, addr := range addrs {
			if _, err := e.writer.WriteToUDP(raw, addr); err != nil {
				e.metrics.SendFailed()
				e.log.WithError(err).WithField("addr", addr.String()).Debug("Send failed")
				continue
			}
			e.metrics.PacketSent(pkt.Layer, len(raw))
		}
	}

	q := e.encoder.Quality()
	layers := e.encoder.Layers()
	e.metrics.SetQuality(q, layers)

	e.mu.Lock()
	e.usage = layered.EstimateBandwidth(q, e.params)
	e.stream.SampleRate = q.SampleRate()
	e.stream.Bits = q.Bits()
	e.stream.Channels = q.Channels()
	e.stream.Level = q.Level()
	e.stream.Layers = layers
	e.stream.PositionMs = e.encoder.Position().Milliseconds()
	if code := e.encoder.ErrorCode(); code != audio.NoError {
		e.stream.ErrorCode = code.String()
	}
	e.mu.Unlock()
	return nil
}

// LayerForSSRC maps a reported SSRC to the layer it was sent on
func (e *AudioEngine) LayerForSSRC(ssrc uint32) (int, bool) {
	return e.packetizer.LayerForSSRC(ssrc)
}

// Usage is the current and top-quality bandwidth used by adaptation
func (e *AudioEngine) Usage() LayerUsage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return LayerUsage{Current: e.usage, Full: e.full}
}

// Stream returns a snapshot for status reporting
func (e *AudioEngine) Stream() protocol.StreamInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stream
}

func (e *AudioEngine) Suspended() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.suspended
}
