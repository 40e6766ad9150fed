// ABOUTME: Test tone generator for audio source
// ABOUTME: Generates a sine wave, optionally ending after a fixed duration
package source

import (
	"io"
	"math"
	"sync"
	"time"
)

// ToneConfig configures a ToneSource; zero values pick 440Hz 48kHz stereo, endless
type ToneConfig struct {
	Frequency  float64
	SampleRate int
	Channels   int
	Amplitude  float64
	Length     time.Duration
}

// ToneSource generates a sine test tone
type ToneSource struct {
	mu          sync.Mutex
	cfg         ToneConfig
	sampleIndex uint64
	total       uint64
}

// NewToneSource creates a new test tone generator
func NewToneSource(cfg ToneConfig) *ToneSource {
	if cfg.Frequency == 0 {
		cfg.Frequency = 440.0
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = 0.5
	}
	s := &ToneSource{cfg: cfg}
	if cfg.Length > 0 {
		s.total = uint64(cfg.Length.Seconds() * float64(cfg.SampleRate))
	}
	return s
}

func (s *ToneSource) Read(samples []int32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.cfg.Channels
	frames := len(samples) / ch
	if s.total > 0 {
		remaining := s.total - s.sampleIndex
		if remaining == 0 {
			return 0, io.EOF
		}
		if uint64(frames) > remaining {
			frames = int(remaining)
		}
	}

	for i := 0; i < frames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.cfg.SampleRate)
		v := int32(math.Sin(2*math.Pi*s.cfg.Frequency*t) * 8388607.0 * s.cfg.Amplitude)
		for c := 0; c < ch; c++ {
			samples[i*ch+c] = v
		}
	}
	s.sampleIndex += uint64(frames)

	return frames * ch, nil
}

func (s *ToneSource) SampleRate() int { return s.cfg.SampleRate }
func (s *ToneSource) Channels() int   { return s.cfg.Channels }
func (s *ToneSource) BitDepth() int   { return 24 }
func (s *ToneSource) Duration() time.Duration {
	return s.cfg.Length
}
func (s *ToneSource) Metadata() (string, string, string) {
	return "Test Tone", "layercast", "sine generator"
}
func (s *ToneSource) Close() error { return nil }
