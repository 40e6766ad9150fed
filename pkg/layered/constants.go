// ABOUTME: Timing and sizing constants shared by encoder and decoder
// ABOUTME: Frame cadence, buffer depth and wire sizes
package layered

import (
	"time"

	"github.com/Resonate-Protocol/layercast/pkg/audio"
)

const (
	// FormatTag identifies layered packets ("LAYR")
	FormatTag uint32 = 0x4C415952

	HeaderSize   = 28
	MetadataSize = 16 + 3*metadataFieldSize

	// TransportOverhead is RTP + UDP + IPv4 per packet
	TransportOverhead = 12 + 8 + 20

	DefaultMaxPacketSize = 1200

	FrameRate     = 25
	FrameDuration = time.Second / FrameRate

	// MaxLayers is the number of RTP streams a stream may use
	MaxLayers = 3

	MaxTransferDelay = 120 * time.Millisecond
	ServiceOverhead  = 10 * time.Millisecond

	// FrameBufferSize is how many distinct positions are held before the oldest is rendered
	FrameBufferSize = int(MaxTransferDelay/FrameDuration) + 1

	CleanupFactor = 4
	TimerPeriod   = CleanupFactor*FrameDuration - ServiceOverhead

	// MetadataInterval in frames (about twice a second)
	MetadataInterval = FrameRate / 2

	// ErrorDrainFrames is how long error packets are repeated before suspending
	ErrorDrainFrames = FrameRate

	// TimestampClockRate of the RTP timestamp derived from stream position
	TimestampClockRate = 48000
)

// MaxFrameSize bounds one reconstructed frame
var MaxFrameSize = audio.HighestQuality().FrameBytes(FrameRate)

// ResyncThreshold is the position spread that flushes the frame set
func ResyncThreshold(frameBufferSize int) time.Duration {
	return time.Duration(CleanupFactor*frameBufferSize) * FrameDuration
}
