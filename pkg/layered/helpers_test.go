// ABOUTME: Shared fixtures for codec tests
// ABOUTME: Deterministic source and a sink that records rendered frames
package layered

import (
	"io"
	"sync"
	"time"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
)

// rampSource produces a deterministic pseudo-random waveform
type rampSource struct {
	rate, channels int
	index          int
	limit          int // total samples, zero for endless
	err            error
}

func sampleAt(i int) int32 {
	return int32((i*7919)%65536-32768) << 8
}

func (s *rampSource) Read(samples []int32) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n := len(samples)
	if s.limit > 0 {
		if s.index >= s.limit {
			return 0, io.EOF
		}
		if s.index+n > s.limit {
			n = s.limit - s.index
		}
	}
	for i := 0; i < n; i++ {
		samples[i] = sampleAt(s.index + i)
	}
	s.index += n
	return n, nil
}

func (s *rampSource) SampleRate() int         { return s.rate }
func (s *rampSource) Channels() int           { return s.channels }
func (s *rampSource) BitDepth() int           { return 16 }
func (s *rampSource) Duration() time.Duration { return 0 }
func (s *rampSource) Metadata() (string, string, string) {
	return "Ramp", "Tester", "unit"
}
func (s *rampSource) Close() error { return nil }

// expectedFrame packs frame k of a rampSource at quality q
func expectedFrame(q audio.Quality, k int) []byte {
	frameSamples := q.SampleRate() / FrameRate * q.Channels()
	samples := make([]int32, frameSamples)
	for i := range samples {
		samples[i] = sampleAt(k*frameSamples + i)
	}
	out := make([]byte, q.FrameBytes(FrameRate))
	n, _ := audio.Pack(samples, q.Bits(), q.Channels(), out)
	return out[:n]
}

// recordingSink keeps copies of rendered frames
type recordingSink struct {
	mu     sync.Mutex
	frames []Frame
}

func (s *recordingSink) WriteFrame(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.Data = append([]byte(nil), f.Data...)
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) all() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

// encodeFrames runs the encoder for n frames and returns each frame's packets
func encodeFrames(enc *Encoder, n int) ([][]Packet, error) {
	var out [][]Packet
	for i := 0; i < n; i++ {
		if err := enc.PrepareNextFrame(); err != nil {
			return out, err
		}
		var frame []Packet
		for {
			pkt, ok := enc.GetNextPacket(DefaultMaxPacketSize)
			if !ok {
				break
			}
			cp := *pkt
			cp.Data = append([]byte(nil), pkt.Data...)
			frame = append(frame, cp)
		}
		out = append(out, frame)
	}
	return out, nil
}
