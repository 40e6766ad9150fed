// ABOUTME: Layered decoder buffering plane fragments and rendering whole frames
// ABOUTME: Packet admission and the periodic render task share one lock; the sink runs outside it
package layered

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
)

// Format of rendered audio
type Format struct {
	SampleRate int
	Bits       int
	Channels   int
	ByteOrder  audio.ByteOrder
}

// Frame is one rendered frame handed to a Sink
type Frame struct {
	Format
	Position    time.Duration
	MaxPosition time.Duration
	ErrorCode   audio.ErrorCode
	// Data is only valid during WriteFrame; sinks that keep it must copy
	Data []byte
}

// Sink receives rendered frames in position order
type Sink interface {
	WriteFrame(f Frame) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(f Frame) error

func (fn SinkFunc) WriteFrame(f Frame) error { return fn(f) }

// DecoderConfig configures a layered decoder
type DecoderConfig struct {
	Sink            Sink
	FrameBufferSize int
	TimerPeriod     time.Duration
	Clock           Clock
}

// DecoderStats counts decoder activity
type DecoderStats struct {
	Received   uint64
	Accepted   uint64
	Dropped    uint64
	Malformed  uint64
	Duplicates uint64
	Late       uint64
	Rendered   uint64
	Repaired   uint64
	Flushes    uint64
	Aborted    uint64
}

// Decoder reassembles layered packets into frames
type Decoder struct {
	cfg DecoderConfig

	mu          sync.Mutex
	validators  [MaxLayers]*SequenceValidator
	ssrcs       [MaxLayers]uint32
	frames      *frameSet
	metadata    Metadata
	position    uint64
	maxPosition uint64
	format      Format
	errorCode   audio.ErrorCode
	stats       DecoderStats

	// playhead is the newest position handed to rendering
	playhead uint64
	played   bool
	// generation changes on every reset so in-flight renders can be discarded
	generation uint64

	// renderMu serializes reconstruction; scratch is only touched under it
	renderMu sync.Mutex
	scratch  []byte

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	log *logrus.Entry
}

// NewDecoder creates a decoder; zero config values take the package defaults
func NewDecoder(cfg DecoderConfig) *Decoder {
	if cfg.FrameBufferSize <= 0 {
		cfg.FrameBufferSize = FrameBufferSize
	}
	if cfg.TimerPeriod <= 0 {
		cfg.TimerPeriod = TimerPeriod
	}
	if cfg.Clock == nil {
		cfg.Clock = MonotonicClock{}
	}
	d := &Decoder{
		cfg:     cfg,
		frames:  newFrameSet(),
		scratch: make([]byte, MaxFrameSize),
		log:     logrus.WithField("component", "layered-decoder"),
	}
	for i := range d.validators {
		d.validators[i] = NewSequenceValidator(cfg.Clock, TimestampClockRate)
	}
	return d
}

// Start resets the decoder and runs the render task until ctx ends or Stop is called
func (d *Decoder) Start(ctx context.Context) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.cancel != nil {
		return
	}

	d.Reset()
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(d.cfg.TimerPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.Tick()
			case <-ctx.Done():
				return
			}
		}
	}(d.done)

	d.log.WithField("period", d.cfg.TimerPeriod).Debug("Decoder started")
}

// Stop halts the render task and flushes all state
func (d *Decoder) Stop() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.cancel = nil
	d.Reset()
	d.log.Debug("Decoder stopped")
}

// Reset clears validators, metadata, buffered frames and stream state
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *Decoder) resetLocked() {
	for _, v := range d.validators {
		v.Reset()
	}
	d.ssrcs = [MaxLayers]uint32{}
	d.frames.clear()
	d.metadata = Metadata{}
	d.position = 0
	d.maxPosition = 0
	d.format = Format{}
	d.errorCode = audio.NoError
	d.playhead = 0
	d.played = false
	d.generation++
}

// Receive admits one raw RTP packet. The layer is taken from the payload
// type. Malformed or out-of-sequence packets are dropped and counted.
func (d *Decoder) Receive(raw []byte) bool {
	var rp rtp.Packet
	if err := rp.Unmarshal(raw); err != nil {
		d.countMalformed(err)
		return false
	}
	layer, ok := LayerForPayloadType(rp.PayloadType)
	if !ok {
		d.countMalformed(ErrUnknownLayer)
		return false
	}

	var pkt Packet
	if err := pkt.Unmarshal(rp.Payload); err != nil {
		d.countMalformed(err)
		return false
	}
	pkt.Layer = layer

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.checkLocked(layer, rp.SequenceNumber, rp.Timestamp) {
		return false
	}
	d.ssrcs[layer] = rp.SSRC
	d.handleLocked(&pkt)
	return true
}

func (d *Decoder) countMalformed(err error) {
	d.mu.Lock()
	d.stats.Received++
	d.stats.Malformed++
	d.mu.Unlock()
	d.log.WithError(err).Debug("Dropping malformed packet")
}

// CheckNextPacket runs the layer's sequence validator. A detected jump
// resets the decoder and admits the packet as the start of the new stream.
func (d *Decoder) CheckNextPacket(layer int, seq uint16, timestamp uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checkLocked(layer, seq, timestamp)
}

func (d *Decoder) checkLocked(layer int, seq uint16, timestamp uint32) bool {
	d.stats.Received++
	if layer < 0 || layer >= MaxLayers {
		d.stats.Malformed++
		return false
	}

	res := d.validators[layer].ValidateTimestamped(seq, timestamp)
	switch res {
	case Valid:
		return true
	case Jumped:
		d.log.WithFields(logrus.Fields{"layer": layer, "seq": seq}).Info("Sequence jump, resetting decoder")
		d.resetLocked()
		d.validators[layer].Prime(seq, timestamp)
		return true
	case DuplicatePacket:
		d.stats.Duplicates++
	}
	d.stats.Dropped++
	return false
}

// HandleNextPacket stores a validated packet in the frame set
func (d *Decoder) HandleNextPacket(p *Packet) error {
	if err := p.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handleLocked(p)
	return nil
}

func (d *Decoder) handleLocked(p *Packet) {
	if p.IsMetadata() {
		d.stats.Accepted++
		md, err := UnmarshalMetadata(p.Data)
		if err != nil {
			d.stats.Malformed++
			return
		}
		d.metadata = md
		return
	}

	if d.isLateLocked(p.Position) {
		d.stats.Late++
		d.noteErrorLocked(p.ErrorCode)
		return
	}
	d.stats.Accepted++

	plane, _ := p.Plane()
	node := d.frames.getOrCreate(p)

	if p.ErrorCode != audio.NoError {
		node.errorCode = p.ErrorCode
		d.noteErrorLocked(p.ErrorCode)
	}

	if len(p.Data) == 0 {
		return
	}
	if !node.add(plane, p.Fragment, p.Data) {
		d.stats.Duplicates++
	}
}

// noteErrorLocked raises an unrecoverable code to the decoder at once
func (d *Decoder) noteErrorLocked(code audio.ErrorCode) {
	if code.IsUnrecoverable() && d.errorCode != code {
		d.errorCode = code
		d.log.WithField("code", code).Warn("Stream reported unrecoverable error")
	}
}

// isLateLocked reports a position at or behind the playhead. A position
// further back than the resync window is a backward seek and starts over.
func (d *Decoder) isLateLocked(position uint64) bool {
	if !d.played || position > d.playhead {
		return false
	}
	if time.Duration(d.playhead-position) > ResyncThreshold(d.cfg.FrameBufferSize) {
		d.log.WithFields(logrus.Fields{
			"playhead": time.Duration(d.playhead),
			"position": time.Duration(position),
		}).Info("Position moved back, restarting playout")
		d.played = false
		return false
	}
	return true
}

// Tick is the periodic render task. It flushes the frame set after a
// position discontinuity, then renders the oldest frames while at least
// FrameBufferSize positions are buffered.
func (d *Decoder) Tick() {
	d.renderMu.Lock()
	defer d.renderMu.Unlock()

	d.mu.Lock()
	if spread := d.frames.spread(); time.Duration(spread) > ResyncThreshold(d.cfg.FrameBufferSize) {
		d.log.WithFields(logrus.Fields{
			"spread":   time.Duration(spread),
			"buffered": d.frames.len(),
		}).Info("Position spread too large, flushing buffered frames")
		d.frames.clear()
		d.stats.Flushes++
	}

	var ready []*frameNode
	for d.frames.len() >= d.cfg.FrameBufferSize {
		n, ok := d.frames.popMin()
		if !ok {
			break
		}
		ready = append(ready, n)
		d.playhead = n.position
		d.played = true
	}
	generation := d.generation
	d.mu.Unlock()

	for _, n := range ready {
		d.render(n, generation)
	}
}

func (d *Decoder) render(n *frameNode, generation uint64) {
	res := n.reconstruct(d.scratch)
	if res.aborted {
		d.log.WithFields(logrus.Fields{
			"position":  time.Duration(n.position),
			"fragments": n.fragmentCount(),
		}).Warn("Frame exceeds maximum size, truncated")
	}

	format := Format{SampleRate: n.sampleRate, Bits: n.bits, Channels: n.channels, ByteOrder: audio.LittleEndian}

	d.mu.Lock()
	if d.generation != generation {
		// reset while rendering; the frame belongs to the old stream
		d.mu.Unlock()
		return
	}
	if res.aborted {
		d.stats.Aborted++
	}
	d.stats.Repaired += uint64(res.repaired)
	d.position = n.position
	d.maxPosition = n.maxPosition
	d.format = format
	if n.errorCode != audio.NoError && !d.errorCode.IsUnrecoverable() {
		d.errorCode = n.errorCode
	}
	render := res.produced > 0 || n.errorCode != audio.NoError
	if render {
		d.stats.Rendered++
	}
	d.mu.Unlock()

	if !render || d.cfg.Sink == nil {
		return
	}

	err := d.cfg.Sink.WriteFrame(Frame{
		Format:      format,
		Position:    time.Duration(n.position),
		MaxPosition: time.Duration(n.maxPosition),
		ErrorCode:   n.errorCode,
		Data:        d.scratch[:res.size],
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		d.log.WithError(err).Warn("Sink rejected frame")
	}
}

// Position of the last rendered frame
func (d *Decoder) Position() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Duration(d.position)
}

// MaxPosition reported by the stream, zero when unknown
func (d *Decoder) MaxPosition() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Duration(d.maxPosition)
}

// Format of the last rendered frame
func (d *Decoder) Format() Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

// ErrorCode is the decoder-wide stream error
func (d *Decoder) ErrorCode() audio.ErrorCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errorCode
}

// Metadata is the latest metadata record
func (d *Decoder) Metadata() Metadata {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metadata
}

// BufferedFrames is the number of positions waiting to render
func (d *Decoder) BufferedFrames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames.len()
}

// Stats returns a snapshot of the counters
func (d *Decoder) Stats() DecoderStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// ReceptionReports describes every layer that has completed probation, for RTCP
func (d *Decoder) ReceptionReports() []rtcp.ReceptionReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	var reports []rtcp.ReceptionReport
	for layer, v := range d.validators {
		if !v.Ready() || d.ssrcs[layer] == 0 {
			continue
		}
		lost := v.CumulativeLost()
		if lost < 0 {
			lost = 0
		}
		reports = append(reports, rtcp.ReceptionReport{
			SSRC:               d.ssrcs[layer],
			FractionLost:       v.CalculateFractionLost(),
			TotalLost:          uint32(lost) & 0xFFFFFF,
			LastSequenceNumber: v.ExtendedHighest(),
			Jitter:             v.Jitter(),
		})
	}
	return reports
}
