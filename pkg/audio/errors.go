// ABOUTME: Stream error codes and sentinel errors
// ABOUTME: Maps source failures onto the one-byte code carried in packets
package audio

import (
	"errors"
	"io"
)

// ErrorCode is carried in every transport packet header
type ErrorCode uint8

const (
	NoError ErrorCode = iota
	NoMedia
	EndOfStream
	UnrecoverableError
	BadMedia
	ReadError
	OutOfMemory
)

var (
	ErrUnknownQuality = errors.New("unknown quality level")
	ErrBadPCMLength   = errors.New("pcm length does not match layout")
	ErrNoMedia        = errors.New("no media available")
	ErrBadMedia       = errors.New("unsupported or corrupt media")
)

// IsUnrecoverable reports codes that must end playback immediately
func (c ErrorCode) IsUnrecoverable() bool {
	return c >= UnrecoverableError
}

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "none"
	case NoMedia:
		return "no media"
	case EndOfStream:
		return "end of stream"
	case UnrecoverableError:
		return "unrecoverable"
	case BadMedia:
		return "bad media"
	case ReadError:
		return "read error"
	case OutOfMemory:
		return "out of memory"
	}
	return "unknown"
}

// ErrorCodeFor classifies a source error
func ErrorCodeFor(err error) ErrorCode {
	switch {
	case err == nil:
		return NoError
	case errors.Is(err, io.EOF):
		return EndOfStream
	case errors.Is(err, ErrNoMedia):
		return NoMedia
	case errors.Is(err, ErrBadMedia):
		return BadMedia
	}
	return ReadError
}
