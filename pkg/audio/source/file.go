// ABOUTME: File and HTTP backed audio sources
// ABOUTME: Decodes MP3 via go-mp3 and FLAC via mewkiz/flac into 24-bit range samples
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
)

// MP3Source reads from an MP3 file
type MP3Source struct {
	file     *os.File
	decoder  *mp3.Decoder
	loop     bool
	title    string
	duration time.Duration
	buf      []byte
}

// NewMP3Source creates a new MP3 audio source
func NewMP3Source(filePath string, opts Options) (*MP3Source, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %v: %w", err, audio.ErrBadMedia)
	}

	s := &MP3Source{
		file:    f,
		decoder: decoder,
		loop:    opts.Loop,
		title:   titleFromPath(filePath),
	}
	// go-mp3 always decodes to 16-bit stereo, 4 bytes per frame
	if length := decoder.Length(); length > 0 {
		s.duration = time.Duration(length/4) * time.Second / time.Duration(decoder.SampleRate())
	}

	log.WithFields(logrus.Fields{
		"title":       s.title,
		"sample_rate": decoder.SampleRate(),
		"duration":    s.duration,
	}).Info("Loaded MP3")

	return s, nil
}

func (s *MP3Source) Read(samples []int32) (int, error) {
	n, err := readInt16(s.decoder, samples, &s.buf)
	if errors.Is(err, io.EOF) && s.loop {
		if _, seekErr := s.decoder.Seek(0, io.SeekStart); seekErr != nil {
			return n, fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		return n, nil
	}
	return n, err
}

func (s *MP3Source) SampleRate() int         { return s.decoder.SampleRate() }
func (s *MP3Source) Channels() int           { return 2 }
func (s *MP3Source) BitDepth() int           { return 16 }
func (s *MP3Source) Duration() time.Duration { return s.duration }
func (s *MP3Source) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", ""
}
func (s *MP3Source) Close() error {
	return s.file.Close()
}

// readInt16 reads little-endian 16-bit PCM and widens it to 24-bit range.
// A partial read followed by io.EOF reports the samples and defers the EOF.
func readInt16(r io.Reader, samples []int32, scratch *[]byte) (int, error) {
	need := len(samples) * 2
	if cap(*scratch) < need {
		*scratch = make([]byte, need)
	}
	buf := (*scratch)[:need]

	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	count := n / 2
	for i := 0; i < count; i++ {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(buf[i*2:])))
	}
	if count > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return count, err
}

// FLACSource reads from a FLAC file
type FLACSource struct {
	file     *os.File
	stream   *flac.Stream
	loop     bool
	rate     int
	channels int
	bitDepth int
	title    string
	duration time.Duration
	pending  []int32
}

// NewFLACSource creates a new FLAC audio source
func NewFLACSource(filePath string, opts Options) (*FLACSource, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %v: %w", err, audio.ErrBadMedia)
	}

	info := stream.Info
	s := &FLACSource{
		file:     f,
		stream:   stream,
		loop:     opts.Loop,
		rate:     int(info.SampleRate),
		channels: int(info.NChannels),
		bitDepth: int(info.BitsPerSample),
		title:    titleFromPath(filePath),
	}
	if info.SampleRate > 0 {
		s.duration = time.Duration(info.NSamples) * time.Second / time.Duration(info.SampleRate)
	}

	log.WithFields(logrus.Fields{
		"title":       s.title,
		"sample_rate": s.rate,
		"channels":    s.channels,
		"bit_depth":   s.bitDepth,
	}).Info("Loaded FLAC")

	return s, nil
}

func (s *FLACSource) Read(samples []int32) (int, error) {
	read := copy(samples, s.pending)
	s.pending = s.pending[read:]

	for read < len(samples) {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return read, err
			}
			if !s.loop {
				if read > 0 {
					return read, nil
				}
				return 0, io.EOF
			}
			if err := s.rewind(); err != nil {
				return read, err
			}
			continue
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < s.channels; ch++ {
				v := audio.ScaleToBitDepth(frame.Subframes[ch].Samples[i], s.bitDepth)
				if read < len(samples) {
					samples[read] = v
					read++
				} else {
					s.pending = append(s.pending, v)
				}
			}
		}
	}

	return read, nil
}

func (s *FLACSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *FLACSource) SampleRate() int         { return s.rate }
func (s *FLACSource) Channels() int           { return s.channels }
func (s *FLACSource) BitDepth() int           { return s.bitDepth }
func (s *FLACSource) Duration() time.Duration { return s.duration }
func (s *FLACSource) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", ""
}
func (s *FLACSource) Close() error {
	return s.file.Close()
}

// HTTPMP3Source streams MP3 from an HTTP URL
type HTTPMP3Source struct {
	url      string
	response *http.Response
	decoder  *mp3.Decoder
	buf      []byte
}

// NewHTTPMP3Source creates a new HTTP MP3 streaming source
func NewHTTPMP3Source(url string) (*HTTPMP3Source, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HTTP stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error %s: %w", resp.Status, audio.ErrNoMedia)
	}

	decoder, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to decode MP3 stream: %v: %w", err, audio.ErrBadMedia)
	}

	log.WithFields(logrus.Fields{
		"url":         url,
		"sample_rate": decoder.SampleRate(),
	}).Info("Streaming MP3 from HTTP")

	return &HTTPMP3Source{url: url, response: resp, decoder: decoder}, nil
}

// Read never loops; end of the HTTP body is end of stream
func (s *HTTPMP3Source) Read(samples []int32) (int, error) {
	return readInt16(s.decoder, samples, &s.buf)
}

func (s *HTTPMP3Source) SampleRate() int         { return s.decoder.SampleRate() }
func (s *HTTPMP3Source) Channels() int           { return 2 }
func (s *HTTPMP3Source) BitDepth() int           { return 16 }
func (s *HTTPMP3Source) Duration() time.Duration { return 0 }
func (s *HTTPMP3Source) Metadata() (string, string, string) {
	return "HTTP Stream", s.url, ""
}
func (s *HTTPMP3Source) Close() error {
	if s.response != nil {
		return s.response.Body.Close()
	}
	return nil
}
