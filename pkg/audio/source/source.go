// ABOUTME: Audio source abstraction for streaming from files or generating test tones
// ABOUTME: Supports MP3 and FLAC files, HTTP MP3 streams and a sine tone
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
)

// AudioSource provides PCM audio samples to the encoder
type AudioSource interface {
	// Read fills samples with interleaved PCM in 24-bit range. Returns samples
	// read; io.EOF once the media is exhausted.
	Read(samples []int32) (int, error)
	SampleRate() int
	Channels() int
	// BitDepth is the native resolution of the media
	BitDepth() int
	// Metadata returns title, artist, comment
	Metadata() (title, artist, comment string)
	// Duration of the media, zero when unknown
	Duration() time.Duration
	Close() error
}

// Options control how a source is opened
type Options struct {
	// Loop restarts file sources at end of file instead of returning io.EOF
	Loop bool
}

// Open creates an audio source from a file path or HTTP URL.
// An empty path yields a test tone.
func Open(pathOrURL string, opts Options) (AudioSource, error) {
	if pathOrURL == "" {
		return NewToneSource(ToneConfig{}), nil
	}

	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return NewHTTPMP3Source(pathOrURL)
	}

	if _, err := os.Stat(pathOrURL); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s: %w", pathOrURL, audio.ErrNoMedia)
	}

	switch ext := strings.ToLower(filepath.Ext(pathOrURL)); ext {
	case ".mp3":
		return NewMP3Source(pathOrURL, opts)
	case ".flac":
		return NewFLACSource(pathOrURL, opts)
	default:
		return nil, fmt.Errorf("unsupported audio format %s (supported: .mp3, .flac): %w", ext, audio.ErrBadMedia)
	}
}

// Quality returns the ladder level that best matches a source
func Quality(s AudioSource) audio.Quality {
	return audio.QualityFor(s.SampleRate(), s.BitDepth(), s.Channels())
}

func titleFromPath(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

var log = logrus.WithField("component", "source")
