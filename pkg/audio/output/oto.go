// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams 16-bit PCM through a pipe into one persistent oto player
package output

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
)

var ErrNotOpen = errors.New("output not initialized")

// Oto output implementation using the oto library
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	volume     int
	muted      bool
	scratch    []byte
	log        *logrus.Entry
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{
		volume: 100,
		log:    logrus.WithField("component", "output"),
	}
}

// Open initializes the device. oto allows one context per process, so a
// second Open keeps the first format.
func (o *Oto) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil {
		if o.sampleRate != sampleRate || o.channels != channels {
			o.log.WithFields(logrus.Fields{
				"current":   fmt.Sprintf("%dHz/%dch", o.sampleRate, o.channels),
				"requested": fmt.Sprintf("%dHz/%dch", sampleRate, channels),
			}).Warn("oto cannot reinitialize, keeping current format")
		}
		return nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = ctx.NewPlayer(o.pipeReader)
	o.player.Play()

	o.log.WithFields(logrus.Fields{
		"sample_rate": sampleRate,
		"channels":    channels,
	}).Info("Audio output initialized")
	return nil
}

// Write converts samples to 16-bit little endian and feeds the player.
// Calls must come from one goroutine.
func (o *Oto) Write(samples []int32) error {
	o.mu.Lock()
	w := o.pipeWriter
	if w == nil {
		o.mu.Unlock()
		return ErrNotOpen
	}
	if cap(o.scratch) < len(samples)*2 {
		o.scratch = make([]byte, len(samples)*2)
	}
	buf := o.scratch[:len(samples)*2]
	encodeInt16(buf, samples, volumeMultiplier(o.volume, o.muted))
	o.mu.Unlock()

	// blocks while the device drains; the lock is not held
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend oto: %w", err)
		}
	}
	return nil
}

// SetVolume sets the volume, clamped to 0-100
func (o *Oto) SetVolume(volume int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = clampVolume(volume)
}

func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.muted = muted
}

func (o *Oto) Volume() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

func (o *Oto) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func volumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0
	}
	return float64(volume) / 100.0
}

// encodeInt16 scales samples by gain and writes them as int16 LE into dst
func encodeInt16(dst []byte, samples []int32, gain float64) {
	for i, s := range samples {
		scaled := audio.Clamp24(int64(float64(s) * gain))
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(audio.SampleToInt16(scaled)))
	}
}
