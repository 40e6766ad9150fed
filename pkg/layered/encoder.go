// ABOUTME: Layered encoder turning source audio into plane fragments
// ABOUTME: One frame per PrepareNextFrame, drained packet by packet with GetNextPacket
package layered

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
	"github.com/Resonate-Protocol/layercast/pkg/audio/resample"
	"github.com/Resonate-Protocol/layercast/pkg/audio/source"
)

// EncoderConfig configures a layered encoder
type EncoderConfig struct {
	Source source.AudioSource
	// Quality is the user's ceiling; unset means the top of the ladder
	Quality        audio.Quality
	Limits         Limits
	DecrementSteps int
	// Packet describes packetization for the policy estimate
	Packet PacketParams
}

// Encoder produces layered packets from an audio source. It is driven from a
// single goroutine.
type Encoder struct {
	src            source.AudioSource
	sourceQuality  audio.Quality
	userQuality    audio.Quality
	limits         Limits
	decrementSteps int
	params         PacketParams

	quality   audio.Quality
	resampler *resample.Resampler

	readBuf  []int32
	mixBuf   []int32
	rateBuf  []int32
	frameBuf []byte
	planes   [NumPlanes][]byte
	tier     tier

	frameIndex  uint64
	position    uint64
	maxPosition uint64
	frameReady  bool

	// drain state for the prepared frame
	fragments    int
	perFragment  int
	nextPlane    Plane
	nextFragment int
	sendMeta     bool
	metaCounter  int
	metadata     Metadata

	errorCode   audio.ErrorCode
	errorFrames int
	pendingErr  error

	log *logrus.Entry
}

// NewEncoder validates cfg and sizes all buffers up front
func NewEncoder(cfg EncoderConfig) (*Encoder, error) {
	if cfg.Source == nil {
		return nil, ErrNoSource
	}
	if cfg.Quality.IsZero() {
		cfg.Quality = audio.HighestQuality()
	}
	if cfg.Packet == (PacketParams{}) {
		cfg.Packet = DefaultPacketParams()
	}
	if cfg.Packet.MaxPacketSize <= HeaderSize+2 {
		return nil, fmt.Errorf("%w: %d", ErrPacketTooSmall, cfg.Packet.MaxPacketSize)
	}

	rate, channels := cfg.Source.SampleRate(), cfg.Source.Channels()
	if rate <= 0 || channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %d Hz, %d channels", ErrUnsupportedTier, rate, channels)
	}

	sourceFrames := rate / FrameRate
	maxFrames := audio.HighestQuality().SampleRate() / FrameRate
	if sourceFrames > maxFrames {
		maxFrames = sourceFrames
	}

	title, artist, comment := cfg.Source.Metadata()
	e := &Encoder{
		src:            cfg.Source,
		sourceQuality:  source.Quality(cfg.Source),
		userQuality:    cfg.Quality,
		limits:         cfg.Limits,
		decrementSteps: cfg.DecrementSteps,
		params:         cfg.Packet,
		readBuf:        make([]int32, sourceFrames*channels),
		mixBuf:         make([]int32, sourceFrames*2),
		rateBuf:        make([]int32, maxFrames*2),
		frameBuf:       make([]byte, MaxFrameSize),
		maxPosition:    uint64(cfg.Source.Duration()),
		metaCounter:    MetadataInterval,
		metadata: Metadata{
			End:     uint64(cfg.Source.Duration()),
			Title:   title,
			Artist:  artist,
			Comment: comment,
		},
		log: logrus.WithField("component", "layered-encoder"),
	}
	for p := range e.planes {
		e.planes[p] = make([]byte, 0, MaxFrameSize)
	}
	return e, nil
}

// SetQuality changes the user's quality ceiling from the next frame on
func (e *Encoder) SetQuality(q audio.Quality) { e.userQuality = q }

// SetBandwidthLimits changes the ceilings from the next frame on
func (e *Encoder) SetBandwidthLimits(l Limits) { e.limits = l }

// SetDecrementSteps lowers the starting point of the policy by n levels
func (e *Encoder) SetDecrementSteps(n int) { e.decrementSteps = n }

// Quality selected for the current frame
func (e *Encoder) Quality() audio.Quality { return e.quality }

// Position of the current frame
func (e *Encoder) Position() time.Duration { return time.Duration(e.position) }

// Layers is the number of transport layers the current frame uses
func (e *Encoder) Layers() int {
	if e.quality.IsZero() {
		return 1
	}
	return TransportLayers(e.quality)
}

// ErrorCode reported by the source, if any
func (e *Encoder) ErrorCode() audio.ErrorCode { return e.errorCode }

// PrepareNextFrame reads and splits the next frame. After a source error it
// emits error frames for about a second, then returns ErrSuspended.
func (e *Encoder) PrepareNextFrame() error {
	e.frameReady = false
	e.nextPlane = PlaneLU
	e.nextFragment = 0
	e.fragments = 0
	e.sendMeta = false

	if e.errorCode == audio.NoError && e.pendingErr != nil {
		e.enterError(e.pendingErr)
	}
	if e.errorCode != audio.NoError {
		return e.prepareErrorFrame()
	}

	q := CalculateQualityForLimits(e.userQuality, e.sourceQuality, e.limits, e.decrementSteps, e.params)
	switch {
	case e.quality.IsZero():
		e.log.WithField("quality", q).Info("Quality selected")
		e.quality = q
	case q != e.quality:
		e.log.WithFields(logrus.Fields{
			"from": e.quality,
			"to":   q,
		}).Info("Quality changed")
		e.quality = q
	}

	n, err := e.readFrame()
	if err != nil && n == 0 {
		e.enterError(err)
		return e.prepareErrorFrame()
	}
	e.pendingErr = err

	frame, err := e.convert()
	if err != nil {
		e.enterError(fmt.Errorf("%w: %v", audio.ErrBadMedia, err))
		return e.prepareErrorFrame()
	}

	t, ok := tierFor(q.Bits(), q.Channels())
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedTier, q)
	}
	e.tier = t
	t.split(frame, &e.planes)

	e.metaCounter++
	if e.metaCounter >= MetadataInterval {
		e.metaCounter = 0
		e.sendMeta = true
	}
	e.advance()
	return nil
}

// readFrame fills readBuf from the source, zero filling a short read
func (e *Encoder) readFrame() (int, error) {
	read := 0
	var err error
	for read < len(e.readBuf) {
		var n int
		n, err = e.src.Read(e.readBuf[read:])
		read += n
		if err != nil || n == 0 {
			break
		}
	}
	for i := read; i < len(e.readBuf); i++ {
		e.readBuf[i] = 0
	}
	return read, err
}

// convert brings readBuf to the selected quality and packs it
func (e *Encoder) convert() ([]byte, error) {
	q := e.quality
	samples := e.readBuf

	if ch := e.src.Channels(); ch != q.Channels() {
		frames := len(samples) / ch
		out := e.mixBuf[:frames*q.Channels()]
		audio.RemixChannels(samples, ch, out, q.Channels())
		samples = out
	}

	if rate := e.src.SampleRate(); rate != q.SampleRate() {
		if e.resampler == nil || !e.resampler.Matches(rate, q.SampleRate(), q.Channels()) {
			e.resampler = resample.New(rate, q.SampleRate(), q.Channels())
		}
		out := e.rateBuf[:q.SampleRate()/FrameRate*q.Channels()]
		e.resampler.Fill(samples, out)
		samples = out
	}

	n, err := audio.Pack(samples, q.Bits(), q.Channels(), e.frameBuf)
	if err != nil {
		return nil, err
	}
	return e.frameBuf[:n], nil
}

func (e *Encoder) enterError(err error) {
	e.errorCode = audio.ErrorCodeFor(err)
	e.pendingErr = nil
	e.log.WithError(err).WithField("code", e.errorCode).Warn("Source failed, draining error frames")
}

func (e *Encoder) prepareErrorFrame() error {
	if e.errorFrames >= ErrorDrainFrames {
		return ErrSuspended
	}
	e.errorFrames++
	if e.quality.IsZero() {
		e.quality = audio.Min(e.userQuality, e.sourceQuality)
	}
	for p := range e.planes {
		e.planes[p] = e.planes[p][:0]
	}
	e.advance()
	return nil
}

func (e *Encoder) advance() {
	e.position = e.frameIndex * uint64(FrameDuration)
	e.frameIndex++
	e.frameReady = true
}

func (e *Encoder) header() Packet {
	return Packet{
		SampleRate:  e.quality.SampleRate(),
		Channels:    e.quality.Channels(),
		Bits:        e.quality.Bits(),
		Position:    e.position,
		MaxPosition: e.maxPosition,
		ErrorCode:   e.errorCode,
	}
}

// GetNextPacket returns the next packet of the prepared frame, planes in
// LU, RU, LL, RL order followed by metadata when due. Data aliases encoder
// buffers and is valid until the next PrepareNextFrame. ok is false once the
// frame is drained.
func (e *Encoder) GetNextPacket(maxPacketSize int) (*Packet, bool) {
	if !e.frameReady {
		return nil, false
	}

	if e.errorCode != audio.NoError {
		e.frameReady = false
		pkt := e.header()
		pkt.Flags = PlaneLU.Flags()
		return &pkt, true
	}

	if e.fragments == 0 && e.nextPlane == PlaneLU && e.nextFragment == 0 {
		e.perFragment = (maxPacketSize - HeaderSize) / e.tier.maxUnit()
		if e.perFragment <= 0 {
			e.log.WithField("max_packet_size", maxPacketSize).Error("Packet size too small for any payload")
			e.frameReady = false
			return nil, false
		}
		groups := len(e.planes[PlaneLU]) / e.tier.unit(PlaneLU)
		e.fragments = (groups + e.perFragment - 1) / e.perFragment
	}

	for e.nextPlane < NumPlanes {
		p := e.nextPlane
		u := e.tier.unit(p)
		if u == 0 || e.nextFragment >= e.fragments {
			e.nextPlane++
			e.nextFragment = 0
			continue
		}

		start := e.nextFragment * e.perFragment * u
		end := start + e.perFragment*u
		if end > len(e.planes[p]) {
			end = len(e.planes[p])
		}

		pkt := e.header()
		pkt.Layer = PlaneLayer(p, e.quality)
		pkt.Flags = p.Flags()
		pkt.Fragment = uint16(e.nextFragment)
		pkt.Data = e.planes[p][start:end]
		e.nextFragment++
		return &pkt, true
	}

	if e.sendMeta {
		e.sendMeta = false
		pkt := e.header()
		pkt.Flags = FlagMetadata
		pkt.Data = e.metadata.Marshal()
		return &pkt, true
	}

	e.frameReady = false
	return nil, false
}

// IsSuspended reports an encoder that has finished draining after an error
func IsSuspended(err error) bool { return errors.Is(err, ErrSuspended) }
