// ABOUTME: Adapter from rendered layered frames to an Output device
// ABOUTME: Unpacks each frame and converts it to the device rate and channel count
package output

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
	"github.com/Resonate-Protocol/layercast/pkg/audio/resample"
	"github.com/Resonate-Protocol/layercast/pkg/layered"
)

// Sink plays layered frames on an Output opened at a fixed device format.
// Frame quality may change from one frame to the next.
type Sink struct {
	out        Output
	sampleRate int
	channels   int

	mu        sync.Mutex
	opened    bool
	closed    bool
	samples   []int32
	mixed     []int32
	converted []int32
	resampler *resample.Resampler
	written   uint64

	log *logrus.Entry
}

// NewSink plays on out at sampleRate and channels
func NewSink(out Output, sampleRate, channels int) *Sink {
	return &Sink{
		out:        out,
		sampleRate: sampleRate,
		channels:   channels,
		log:        logrus.WithField("component", "sink"),
	}
}

// WriteFrame implements layered.Sink. Frames without audio are skipped.
func (s *Sink) WriteFrame(f layered.Frame) error {
	if len(f.Data) == 0 || f.Channels < 1 || f.SampleRate <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNotOpen
	}
	if !s.opened {
		if err := s.out.Open(s.sampleRate, s.channels); err != nil {
			return fmt.Errorf("failed to open output: %w", err)
		}
		s.opened = true
	}

	s.samples = grow(s.samples, unpackedSamples(len(f.Data), f.Bits, f.Channels))
	n := audio.Unpack(f.Data, f.Bits, f.Channels, s.samples)
	samples := s.samples[:n]

	if f.Channels != s.channels {
		frames := n / f.Channels
		s.mixed = grow(s.mixed, frames*s.channels)
		samples = s.mixed[:audio.RemixChannels(samples, f.Channels, s.mixed, s.channels)]
	}

	if f.SampleRate != s.sampleRate {
		if s.resampler == nil || !s.resampler.Matches(f.SampleRate, s.sampleRate, s.channels) {
			s.resampler = resample.New(f.SampleRate, s.sampleRate, s.channels)
		}
		frames := len(samples) / s.channels * s.sampleRate / f.SampleRate
		s.converted = grow(s.converted, frames*s.channels)
		out := s.converted[:frames*s.channels]
		s.resampler.Fill(samples, out)
		samples = out
	}

	if err := s.out.Write(samples); err != nil {
		return err
	}
	s.written += uint64(len(samples) / s.channels)
	return nil
}

// FramesWritten counts sample frames sent to the device
func (s *Sink) FramesWritten() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Close closes the device
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.opened {
		return nil
	}
	return s.out.Close()
}

// unpackedSamples is the sample count packed data decodes to
func unpackedSamples(size, bits, channels int) int {
	switch bits {
	case 8:
		return size
	case 12:
		return size / (3 * channels) * 2 * channels
	case 16:
		return size / 2
	}
	return 0
}

func grow(buf []int32, n int) []int32 {
	if cap(buf) < n {
		return make([]int32, n)
	}
	return buf[:n]
}
